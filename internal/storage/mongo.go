package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spe/internal/domain"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	kvCollection   = "kv"
	blobCollection = "blobs"
)

type kvDoc struct {
	Key       string `bson:"_id"`
	Value     string `bson:"value"`
	UpdatedAt int64  `bson:"updatedAt"`
}

type blobDoc struct {
	Key         string `bson:"_id"`
	Data        []byte `bson:"data"`
	ContentType string `bson:"contentType"`
	UpdatedAt   int64  `bson:"updatedAt"`
}

// Mongo is a Store and BlobCache over a MongoDB database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to uri and uses the named database ("spe" when empty).
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if !strings.HasPrefix(uri, "mongodb://") && !strings.HasPrefix(uri, "mongodb+srv://") {
		uri = "mongodb://" + uri
	}
	if database == "" {
		database = "spe"
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: mongo: %v", ErrConnectionFailed, err)
	}

	return &Mongo{client: client, db: client.Database(database)}, nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *Mongo) Get(ctx context.Context, key string) (string, error) {
	var doc kvDoc
	err := m.db.Collection(kvCollection).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", domain.NotFoundf("key %q", key)
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return doc.Value, nil
}

func (m *Mongo) Set(ctx context.Context, key, value string) error {
	doc := kvDoc{Key: key, Value: value, UpdatedAt: time.Now().UnixMilli()}
	_, err := m.db.Collection(kvCollection).ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// SetMany writes the entries with one ordered bulk write. Standalone servers
// have no multi-document transactions, so a failure can leave a prefix applied;
// callers order entries so that prefix is harmless.
func (m *Mongo) SetMany(ctx context.Context, entries ...domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	models := make([]mongo.WriteModel, 0, len(entries))
	for _, e := range entries {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": e.Key}).
			SetReplacement(kvDoc{Key: e.Key, Value: e.Value, UpdatedAt: now}).
			SetUpsert(true))
	}
	if _, err := m.db.Collection(kvCollection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("set many: %w", err)
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, key string) error {
	if _, err := m.db.Collection(kvCollection).DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (m *Mongo) GetBlob(ctx context.Context, key string) (domain.Blob, error) {
	var doc blobDoc
	err := m.db.Collection(blobCollection).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Blob{}, domain.NotFoundf("blob %q", key)
	}
	if err != nil {
		return domain.Blob{}, fmt.Errorf("get blob %q: %w", key, err)
	}
	return domain.Blob{Data: doc.Data, ContentType: doc.ContentType}, nil
}

func (m *Mongo) PutBlob(ctx context.Context, key string, blob domain.Blob) error {
	doc := blobDoc{Key: key, Data: blob.Data, ContentType: blob.ContentType, UpdatedAt: time.Now().UnixMilli()}
	_, err := m.db.Collection(blobCollection).ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put blob %q: %w", key, err)
	}
	return nil
}

func (m *Mongo) DeleteBlob(ctx context.Context, key string) error {
	if _, err := m.db.Collection(blobCollection).DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}
