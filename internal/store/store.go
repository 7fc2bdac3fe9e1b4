// Package store is the data-store handle the load generator drives.
//
// The workload core treats a Store as an opaque capability and hands it
// unchanged to the operation strategies. The interfaces here are the subset of
// the MongoDB driver those strategies use, reduced to counts so that tests can
// supply in-memory fakes.
package store

import (
	"context"
)

// Store is a connected data store.
type Store interface {
	// Database returns a handle on a database.
	Database(name string) Database

	// Collection returns a handle on a collection.
	Collection(database, name string) Collection

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Disconnect releases the underlying connections.
	Disconnect(ctx context.Context) error
}

// Database is a handle on one database.
type Database interface {
	// RunCommand runs an ordered command document (first key is the command name).
	RunCommand(ctx context.Context, command interface{}) error
}

// Collection is a handle on one collection.
//
// Every method returns the number of documents it touched.
type Collection interface {
	InsertOne(ctx context.Context, document interface{}) error
	InsertMany(ctx context.Context, documents []interface{}) (int, error)

	// Find runs a query and drains the cursor.
	Find(ctx context.Context, filter interface{}, opts FindOptions) (int, error)

	UpdateOne(ctx context.Context, filter, update interface{}, upsert bool) (UpdateResult, error)
	UpdateMany(ctx context.Context, filter, update interface{}, upsert bool) (UpdateResult, error)
	ReplaceOne(ctx context.Context, filter, replacement interface{}, upsert bool) (UpdateResult, error)

	DeleteOne(ctx context.Context, filter interface{}) (int, error)
	DeleteMany(ctx context.Context, filter interface{}) (int, error)

	// Aggregate runs a pipeline and drains the cursor.
	Aggregate(ctx context.Context, pipeline []interface{}) (int, error)

	// Drop removes the collection.
	Drop(ctx context.Context) error

	// CreateIndex creates an index and returns its name.
	CreateIndex(ctx context.Context, index Index) (string, error)
}

// FindOptions controls a Find call. Zero values mean "not set".
type FindOptions struct {
	Sort       interface{}
	Projection interface{}
	Limit      int64
}

// UpdateResult counts what an update or replace touched.
type UpdateResult struct {
	Matched  int
	Modified int
	Upserted int
}

// Touched returns the number of documents changed or created.
func (r UpdateResult) Touched() int {
	return r.Modified + r.Upserted
}

// Index describes an index to create.
//
// Keys are field names in order; a leading "-" makes the field descending.
type Index struct {
	Keys   []string
	Unique bool
	Name   string
}
