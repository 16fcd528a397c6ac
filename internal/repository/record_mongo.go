package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/shortlink/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mappingsCollection = "mappings"

// mongoRecordRepository хранит записи в коллекции с TTL индексом по expiresAt,
// удаление истёкших документов выполняет сам MongoDB.
type mongoRecordRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoRecordRepository(db *MongoDB) RecordRepository {
	return &mongoRecordRepository{
		collection: db.Database.Collection(mappingsCollection),
		now:        time.Now,
	}
}

func (r *mongoRecordRepository) EnsureSchema(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "shortId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("shortId_unique"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("expiresAt_ttl"),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}

	return nil
}

// Create использует upsert по фильтру "тот же shortId и уже истёк": живой документ
// не совпадает с фильтром, и вставка падает на уникальном индексе.
func (r *mongoRecordRepository) Create(ctx context.Context, mapping *models.Mapping) error {
	filter := bson.D{
		{Key: "shortId", Value: mapping.ShortID},
		{Key: "expiresAt", Value: bson.D{{Key: "$lte", Value: r.now()}}},
	}

	_, err := r.collection.ReplaceOne(ctx, filter, mapping, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrShortIDExists
		}
		return fmt.Errorf("failed to create mapping: %w", err)
	}

	return nil
}

func (r *mongoRecordRepository) GetByShortID(ctx context.Context, shortID string) (*models.Mapping, error) {
	filter := bson.D{
		{Key: "shortId", Value: shortID},
		{Key: "expiresAt", Value: bson.D{{Key: "$gt", Value: r.now()}}},
	}

	var mapping models.Mapping
	if err := r.collection.FindOne(ctx, filter).Decode(&mapping); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMappingNotFound
		}
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}

	return &mapping, nil
}
