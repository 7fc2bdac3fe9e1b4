package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultMaxPoolSize    = 1000
)

// Options configures the MongoDB connection.
type Options struct {
	URI            string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
	AppName        string
}

// Connect dials MongoDB, pings it and returns the wrapped client.
func Connect(ctx context.Context, opts Options) (Store, error) {
	if opts.URI == "" {
		return nil, errors.New("connection string is required")
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.MaxPoolSize == 0 {
		opts.MaxPoolSize = DefaultMaxPoolSize
	}

	clientOpts := options.Client().
		ApplyURI(opts.URI).
		SetMaxPoolSize(opts.MaxPoolSize).
		SetRegistry(Registry())
	if opts.AppName != "" {
		clientOpts.SetAppName(opts.AppName)
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", redact(opts.URI), err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping %s: %w", redact(opts.URI), err)
	}

	return Wrap(client), nil
}

// Wrap adapts an existing client.
func Wrap(client *mongo.Client) Store {
	return &mongoStore{client: client}
}

type mongoStore struct {
	client *mongo.Client
}

func (s *mongoStore) Database(name string) Database {
	return &mongoDatabase{db: s.client.Database(name)}
}

func (s *mongoStore) Collection(database, name string) Collection {
	return &mongoCollection{coll: s.client.Database(database).Collection(name)}
}

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *mongoStore) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type mongoDatabase struct {
	db *mongo.Database
}

func (d *mongoDatabase) RunCommand(ctx context.Context, command interface{}) error {
	return d.db.RunCommand(ctx, command).Err()
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c *mongoCollection) InsertOne(ctx context.Context, document interface{}) error {
	_, err := c.coll.InsertOne(ctx, document)
	return err
}

func (c *mongoCollection) InsertMany(ctx context.Context, documents []interface{}) (int, error) {
	res, err := c.coll.InsertMany(ctx, documents, options.InsertMany().SetOrdered(false))
	if res == nil {
		return 0, err
	}
	return len(res.InsertedIDs), err
}

func (c *mongoCollection) Find(ctx context.Context, filter interface{}, opts FindOptions) (int, error) {
	fo := options.Find()
	if opts.Sort != nil {
		fo.SetSort(opts.Sort)
	}
	if opts.Projection != nil {
		fo.SetProjection(opts.Projection)
	}
	if opts.Limit > 0 {
		fo.SetLimit(opts.Limit)
	}

	cur, err := c.coll.Find(ctx, nonNilFilter(filter), fo)
	if err != nil {
		return 0, err
	}
	return drain(ctx, cur)
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter, update interface{}, upsert bool) (UpdateResult, error) {
	res, err := c.coll.UpdateOne(ctx, nonNilFilter(filter), update, options.Update().SetUpsert(upsert))
	return updateResult(res), err
}

func (c *mongoCollection) UpdateMany(ctx context.Context, filter, update interface{}, upsert bool) (UpdateResult, error) {
	res, err := c.coll.UpdateMany(ctx, nonNilFilter(filter), update, options.Update().SetUpsert(upsert))
	return updateResult(res), err
}

func (c *mongoCollection) ReplaceOne(ctx context.Context, filter, replacement interface{}, upsert bool) (UpdateResult, error) {
	res, err := c.coll.ReplaceOne(ctx, nonNilFilter(filter), replacement, options.Replace().SetUpsert(upsert))
	return updateResult(res), err
}

func (c *mongoCollection) DeleteOne(ctx context.Context, filter interface{}) (int, error) {
	res, err := c.coll.DeleteOne(ctx, nonNilFilter(filter))
	if res == nil {
		return 0, err
	}
	return int(res.DeletedCount), err
}

func (c *mongoCollection) DeleteMany(ctx context.Context, filter interface{}) (int, error) {
	res, err := c.coll.DeleteMany(ctx, nonNilFilter(filter))
	if res == nil {
		return 0, err
	}
	return int(res.DeletedCount), err
}

func (c *mongoCollection) Aggregate(ctx context.Context, pipeline []interface{}) (int, error) {
	if pipeline == nil {
		pipeline = []interface{}{}
	}
	cur, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	return drain(ctx, cur)
}

func (c *mongoCollection) Drop(ctx context.Context) error {
	return c.coll.Drop(ctx)
}

func (c *mongoCollection) CreateIndex(ctx context.Context, index Index) (string, error) {
	if len(index.Keys) == 0 {
		return "", errors.New("index needs at least one key")
	}
	keys := bson.D{}
	for _, key := range index.Keys {
		dir := 1
		if strings.HasPrefix(key, "-") {
			dir = -1
			key = key[1:]
		}
		keys = append(keys, bson.E{Key: key, Value: dir})
	}

	io := options.Index()
	if index.Unique {
		io.SetUnique(true)
	}
	if index.Name != "" {
		io.SetName(index.Name)
	}
	return c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: io})
}

func drain(ctx context.Context, cur *mongo.Cursor) (int, error) {
	defer cur.Close(ctx)
	n := 0
	for cur.Next(ctx) {
		n++
	}
	return n, cur.Err()
}

func updateResult(res *mongo.UpdateResult) UpdateResult {
	if res == nil {
		return UpdateResult{}
	}
	return UpdateResult{
		Matched:  int(res.MatchedCount),
		Modified: int(res.ModifiedCount),
		Upserted: int(res.UpsertedCount),
	}
}

// nonNilFilter maps a nil filter onto the empty document the driver requires.
func nonNilFilter(filter interface{}) interface{} {
	switch f := filter.(type) {
	case nil:
		return bson.D{}
	case map[string]interface{}:
		if f == nil {
			return bson.D{}
		}
	}
	return filter
}

// redact hides the password part of a connection string.
func redact(uri string) string {
	scheme := strings.Index(uri, "://")
	at := strings.LastIndex(uri, "@")
	if scheme < 0 || at < scheme {
		return uri
	}
	creds := uri[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":***"
	}
	return uri[:scheme+3] + creds + uri[at:]
}
