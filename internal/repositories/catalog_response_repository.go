package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogResponseRepository stores raw catalog API responses for a limited time
type CatalogResponseRepository interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, body []byte) error
}

type cachedResponse struct {
	Key       string    `bson:"_id"`
	Body      []byte    `bson:"body"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoCatalogResponseRepository implements CatalogResponseRepository on a
// MongoDB collection with a TTL index on created_at.
type MongoCatalogResponseRepository struct {
	collection *mongo.Collection
	ttl        time.Duration
	now        func() time.Time
}

// NewMongoCatalogResponseRepository creates a new MongoCatalogResponseRepository
func NewMongoCatalogResponseRepository(db *mongo.Database, ttl time.Duration) *MongoCatalogResponseRepository {
	return &MongoCatalogResponseRepository{
		collection: db.Collection("catalog_responses"),
		ttl:        ttl,
		now:        time.Now,
	}
}

// EnsureIndexes creates the TTL index that lets MongoDB expire old responses
func (r *MongoCatalogResponseRepository) EnsureIndexes(ctx context.Context) error {
	seconds := int32(r.ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: 1}},
		Options: options.Index().SetName("catalog_responses_ttl").SetExpireAfterSeconds(seconds),
	})
	return err
}

// Get returns the cached body for key. MongoDB removes expired documents
// lazily, so the age is checked here as well.
func (r *MongoCatalogResponseRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var doc cachedResponse
	err := r.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if r.now().Sub(doc.CreatedAt) > r.ttl {
		return nil, false, nil
	}
	return doc.Body, true, nil
}

// Put stores or replaces the body for key
func (r *MongoCatalogResponseRepository) Put(ctx context.Context, key string, body []byte) error {
	doc := cachedResponse{Key: key, Body: body, CreatedAt: r.now().UTC()}
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	return err
}
