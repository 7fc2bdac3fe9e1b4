// Package storetest provides an in-memory store.Store for tests.
//
// Filters are matched by top-level field equality when they are
// map[string]interface{}; any other filter matches every document. Update
// and replace only count matches, they do not apply update operators.
package storetest

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/wesleyorama2/loadsim/internal/store"
)

// Call is one recorded collection or database operation.
type Call struct {
	Method     string
	Database   string
	Collection string
	Args       []interface{}
}

// Store is an in-memory store. The zero value is not usable; call New.
type Store struct {
	mu          sync.Mutex
	collections map[string][]map[string]interface{}
	indexes     map[string][]store.Index
	calls       []Call
	errs        map[string]error
	pings       int
	closed      bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		collections: make(map[string][]map[string]interface{}),
		indexes:     make(map[string][]store.Index),
		errs:        make(map[string]error),
	}
}

// FailOn makes every call of method return err. A nil err clears it.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, method)
		return
	}
	s.errs[method] = err
}

// Seed adds documents to a collection without recording a call.
func (s *Store) Seed(database, collection string, docs ...map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ns(database, collection)
	s.collections[key] = append(s.collections[key], docs...)
}

// Count returns the number of documents in a collection.
func (s *Store) Count(database, collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[ns(database, collection)])
}

// Indexes returns the indexes created on a collection.
func (s *Store) Indexes(database, collection string) []store.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Index(nil), s.indexes[ns(database, collection)]...)
}

// Calls returns every recorded call.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded calls of one method.
func (s *Store) CallsTo(method string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Closed reports whether Disconnect was called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) Database(name string) store.Database {
	return &database{s: s, name: name}
}

func (s *Store) Collection(db, name string) store.Collection {
	return &collection{s: s, db: db, name: name}
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	if err := s.errs["Ping"]; err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Store) Disconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// record logs a call and returns the injected or context error, if any.
// It must be called with s.mu held.
func (s *Store) record(ctx context.Context, method, db, coll string, args ...interface{}) error {
	s.calls = append(s.calls, Call{Method: method, Database: db, Collection: coll, Args: args})
	if err := s.errs[method]; err != nil {
		return err
	}
	return ctx.Err()
}

type database struct {
	s    *Store
	name string
}

func (d *database) RunCommand(ctx context.Context, command interface{}) error {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	return d.s.record(ctx, "RunCommand", d.name, "", command)
}

type collection struct {
	s    *Store
	db   string
	name string
}

func (c *collection) key() string { return ns(c.db, c.name) }

func (c *collection) InsertOne(ctx context.Context, document interface{}) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.record(ctx, "InsertOne", c.db, c.name, document); err != nil {
		return err
	}
	doc, err := asDocument(document)
	if err != nil {
		return err
	}
	c.s.collections[c.key()] = append(c.s.collections[c.key()], doc)
	return nil
}

func (c *collection) InsertMany(ctx context.Context, documents []interface{}) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.record(ctx, "InsertMany", c.db, c.name, documents); err != nil {
		return 0, err
	}
	for _, d := range documents {
		doc, err := asDocument(d)
		if err != nil {
			return 0, err
		}
		c.s.collections[c.key()] = append(c.s.collections[c.key()], doc)
	}
	return len(documents), nil
}

func (c *collection) Find(ctx context.Context, filter interface{}, opts store.FindOptions) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.record(ctx, "Find", c.db, c.name, filter, opts); err != nil {
		return 0, err
	}
	n := len(c.matching(filter))
	if opts.Limit > 0 && int64(n) > opts.Limit {
		n = int(opts.Limit)
	}
	return n, nil
}

func (c *collection) UpdateOne(ctx context.Context, filter, update interface{}, upsert bool) (store.UpdateResult, error) {
	return c.update(ctx, "UpdateOne", filter, update, upsert, true)
}

func (c *collection) UpdateMany(ctx context.Context, filter, update interface{}, upsert bool) (store.UpdateResult, error) {
	return c.update(ctx, "UpdateMany", filter, update, upsert, false)
}

func (c *collection) ReplaceOne(ctx context.Context, filter, replacement interface{}, upsert bool) (store.UpdateResult, error) {
	return c.update(ctx, "ReplaceOne", filter, replacement, upsert, true)
}

func (c *collection) update(ctx context.Context, method string, filter, update interface{}, upsert, one bool) (store.UpdateResult, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.record(ctx, method, c.db, c.name, filter, update, upsert); err != nil {
		return store.UpdateResult{}, err
	}
	n := len(c.matching(filter))
	if one && n > 1 {
		n = 1
	}
	res := store.UpdateResult{Matched: n, Modified: n}
	if n == 0 && upsert {
		res.Upserted = 1
	}
	return res, nil
}

func (c *collection) DeleteOne(ctx context.Context, filter interface{}) (int, error) {
	return c.delete(ctx, "DeleteOne", filter, true)
}

func (c *collection) DeleteMany(ctx context.Context, filter interface{}) (int, error) {
	return c.delete(ctx, "DeleteMany", filter, false)
}

func (c *collection) delete(ctx context.Context, method string, filter interface{}, one bool) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.record(ctx, method, c.db, c.name, filter); err != nil {
		return 0, err
	}
	var kept []map[string]interface{}
	deleted := 0
	for _, doc := range c.s.collections[c.key()] {
		if matches(doc, filter) && (!one || deleted == 0) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	c.s.collections[c.key()] = kept
	return deleted, nil
}

func (c *collection) Aggregate(ctx context.Context, pipeline []interface{}) (int, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.record(ctx, "Aggregate", c.db, c.name, pipeline); err != nil {
		return 0, err
	}
	return len(c.s.collections[c.key()]), nil
}

func (c *collection) Drop(ctx context.Context) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.record(ctx, "Drop", c.db, c.name); err != nil {
		return err
	}
	delete(c.s.collections, c.key())
	delete(c.s.indexes, c.key())
	return nil
}

func (c *collection) CreateIndex(ctx context.Context, index store.Index) (string, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if err := c.s.record(ctx, "CreateIndex", c.db, c.name, index); err != nil {
		return "", err
	}
	c.s.indexes[c.key()] = append(c.s.indexes[c.key()], index)
	if index.Name != "" {
		return index.Name, nil
	}
	return fmt.Sprintf("idx_%d", len(c.s.indexes[c.key()])), nil
}

func (c *collection) matching(filter interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	for _, doc := range c.s.collections[c.key()] {
		if matches(doc, filter) {
			out = append(out, doc)
		}
	}
	return out
}

func matches(doc map[string]interface{}, filter interface{}) bool {
	f, ok := filter.(map[string]interface{})
	if !ok {
		return true
	}
	for k, want := range f {
		if !reflect.DeepEqual(doc[k], want) {
			return false
		}
	}
	return true
}

func asDocument(v interface{}) (map[string]interface{}, error) {
	doc, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("storetest: unsupported document type %T", v)
	}
	return doc, nil
}

func ns(db, coll string) string { return db + "." + coll }

var _ store.Store = (*Store)(nil)
