package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo is a Store backed by a MongoDB database
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects lazily to uri; the driver dials on first use so an
// unreachable server does not block startup.
func NewMongo(ctx context.Context, uri, database string, timeout time.Duration) (*Mongo, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	return &Mongo{client: client, db: client.Database(database)}, nil
}

func (m *Mongo) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	res, err := m.db.Collection(collection).InsertOne(ctx, bson.M(doc))
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(res.InsertedID), nil
}

func (m *Mongo) FindOne(ctx context.Context, collection string, query Document) (Document, error) {
	var out bson.M
	err := m.db.Collection(collection).FindOne(ctx, bson.M(query)).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find in %s: %w", collection, err)
	}
	return normalizeBSON(out), nil
}

func (m *Mongo) Find(ctx context.Context, collection string, query Document, opts ...FindOption) ([]Document, error) {
	o := applyFindOptions(opts)

	findOpts := options.Find()
	if o.SortField != "" {
		findOpts.SetSort(bson.D{{Key: o.SortField, Value: -1}})
	}
	if o.Limit > 0 {
		findOpts.SetLimit(int64(o.Limit))
	}

	cur, err := m.db.Collection(collection).Find(ctx, bson.M(query), findOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(raw))
	for _, r := range raw {
		docs = append(docs, normalizeBSON(r))
	}
	return docs, nil
}

func (m *Mongo) UpdateOne(ctx context.Context, collection string, query, update Document, upsert bool) (int64, error) {
	res, err := m.db.Collection(collection).UpdateOne(ctx,
		bson.M(query),
		bson.M{"$set": bson.M(update)},
		options.Update().SetUpsert(upsert),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", collection, err)
	}
	return res.ModifiedCount + res.UpsertedCount, nil
}

func (m *Mongo) DeleteOne(ctx context.Context, collection string, query Document) (int64, error) {
	res, err := m.db.Collection(collection).DeleteOne(ctx, bson.M(query))
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

func (m *Mongo) DeleteMany(ctx context.Context, collection string, query Document) (int64, error) {
	res, err := m.db.Collection(collection).DeleteMany(ctx, bson.M(query))
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// normalizeBSON converts driver types into plain Go values
func normalizeBSON(in bson.M) Document {
	out := make(Document, len(in))
	for k, v := range in {
		out[k] = normalizeBSONValue(v)
	}
	return out
}

func normalizeBSONValue(v any) any {
	switch tv := v.(type) {
	case primitive.DateTime:
		return tv.Time().UTC()
	case primitive.ObjectID:
		return tv.Hex()
	case primitive.M:
		return map[string]any(normalizeBSON(tv))
	case primitive.D:
		return map[string]any(normalizeBSON(tv.Map()))
	case primitive.A:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = normalizeBSONValue(item)
		}
		return out
	case int32:
		return float64(tv)
	case int64:
		return float64(tv)
	default:
		return v
	}
}
