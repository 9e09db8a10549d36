package store

import (
	"context"
	"fmt"

	"minter-core/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoEventsCollection = "minter_events"

// MongoLog stores records in a collection with a unique index on seq.
type MongoLog struct {
	coll *mongo.Collection
}

func NewMongoLog(db *mongo.Database) *MongoLog {
	return &MongoLog{coll: db.Collection(mongoEventsCollection)}
}

// CreateIndexes must run once before the first Append.
func (l *MongoLog) CreateIndexes(ctx context.Context) error {
	_, err := l.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create %s indexes: %w", mongoEventsCollection, err)
	}
	return nil
}

func (l *MongoLog) Append(ctx context.Context, rec model.EventRecord) error {
	if _, err := l.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: seq %d already written", ErrCorruptLog, rec.Seq)
		}
		return fmt.Errorf("insert event %d: %w", rec.Seq, err)
	}
	return nil
}

func (l *MongoLog) Load(ctx context.Context) ([]model.EventRecord, error) {
	cursor, err := l.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer cursor.Close(ctx)

	var records []model.EventRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return records, nil
}
