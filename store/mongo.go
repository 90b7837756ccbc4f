package store

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/razeghi71/streamagg/record"
)

// Mongo reads collections from a MongoDB database. Documents are returned in
// natural order with their fields in stored order.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to uri and selects database.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	slog.Info("document store connected", "driver", "mongo", "database", database)
	return &Mongo{client: client, db: client.Database(database)}, nil
}

func (m *Mongo) Fetch(ctx context.Context, name string) (record.Cursor, error) {
	cur, err := m.db.Collection(name).Find(ctx, bson.D{})
	if err != nil {
		return nil, &SourceError{Source: name, Err: err}
	}
	return &mongoCursor{ctx: ctx, cur: cur}, nil
}

func (m *Mongo) Collections(ctx context.Context) ([]string, error) {
	names, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, &SourceError{Source: m.db.Name(), Err: err}
	}
	return names, nil
}

// Replace drops every document of the collection and inserts recs. Unlike
// the SQL store this is not atomic.
func (m *Mongo) Replace(ctx context.Context, name string, recs []*record.Record) error {
	coll := m.db.Collection(name)
	if _, err := coll.DeleteMany(ctx, bson.D{}); err != nil {
		return fmt.Errorf("failed to clear collection %q: %w", name, err)
	}
	if len(recs) == 0 {
		return nil
	}
	docs := make([]any, len(recs))
	for i, r := range recs {
		docs[i] = record.RecordToBSON(r)
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert into %q: %w", name, err)
	}
	return nil
}

func (m *Mongo) Close() error {
	return m.client.Disconnect(context.Background())
}

// mongoCursor adapts *mongo.Cursor; it keeps the Fetch context because
// mongo cursors need one per batch.
type mongoCursor struct {
	ctx context.Context
	cur *mongo.Cursor
	rec *record.Record
	err error
}

func (c *mongoCursor) Next() bool {
	if c.err != nil || !c.cur.Next(c.ctx) {
		return false
	}
	var doc bson.D
	if err := c.cur.Decode(&doc); err != nil {
		c.err = err
		return false
	}
	c.rec = record.RecordFromBSON(doc)
	return true
}

func (c *mongoCursor) Record() *record.Record { return c.rec }

func (c *mongoCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

func (c *mongoCursor) Close() error { return c.cur.Close(context.Background()) }
