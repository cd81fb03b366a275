package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ajitpratap0/streamdsl/pkg/metrics"
	"github.com/ajitpratap0/streamdsl/pkg/sderrors"
)

// MongoStore is a networked KeyedStore backed by a single MongoDB
// collection. Increments use $inc so the read-modify-write is atomic per
// key on the server side.
type MongoStore struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

type mongoEntry struct {
	Key   string      `bson:"_id"`
	Value interface{} `bson:"value"`
}

// NewMongoStore connects to the given URI and uses database/collection for
// accumulator entries.
func NewMongoStore(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "failed to connect to mongodb").
			WithDetail("uri", uri)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "mongodb ping failed").
			WithDetail("uri", uri)
	}

	return &MongoStore{
		collection: client.Database(database).Collection(collection),
		logger:     logger.With(zap.String("component", "mongo_store")),
	}, nil
}

// Get implements KeyedStore.
func (m *MongoStore) Get(ctx context.Context, key string) (interface{}, bool, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveStore("get")

	var entry mongoEntry
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "mongodb read failed").
			WithDetail("key", key)
	}
	return entry.Value, true, nil
}

// Put implements KeyedStore.
func (m *MongoStore) Put(ctx context.Context, key string, value interface{}) error {
	timer := metrics.NewTimer()
	defer timer.ObserveStore("put")

	_, err := m.collection.ReplaceOne(ctx,
		bson.M{"_id": key},
		mongoEntry{Key: key, Value: value},
		options.Replace().SetUpsert(true))
	if err != nil {
		return sderrors.Wrap(err, sderrors.ErrorTypeConnection, "mongodb write failed").
			WithDetail("key", key)
	}
	return nil
}

// Increment implements KeyedStore.
func (m *MongoStore) Increment(ctx context.Context, key string) (int64, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveStore("increment")

	var entry mongoEntry
	err := m.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)).
		Decode(&entry)
	if err != nil {
		return 0, sderrors.Wrap(err, sderrors.ErrorTypeConnection, "mongodb increment failed").
			WithDetail("key", key)
	}
	return toInt64(entry.Value), nil
}

// Close disconnects the underlying client.
func (m *MongoStore) Close(ctx context.Context) error {
	return m.collection.Database().Client().Disconnect(ctx)
}
