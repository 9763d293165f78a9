package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tender-scraper/models"
)

// noticeDocument is the stored shape of one record.
type noticeDocument struct {
	models.MergedRecord `bson:",inline"`

	RunID    string    `bson:"run_id"`
	StoredAt time.Time `bson:"stored_at"`
}

// MongoWriter upserts merged records into a MongoDB collection keyed by
// notice number.
type MongoWriter struct {
	client  *mongo.Client
	notices *mongo.Collection
	runID   string
	timeout time.Duration
}

// NewMongoWriter connects, pings and ensures the collection's indexes.
func NewMongoWriter(uri, database, collection, runID string) (*MongoWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	w := &MongoWriter{
		client:  client,
		notices: client.Database(database).Collection(collection),
		runID:   runID,
		timeout: 30 * time.Second,
	}

	if err := w.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: create indexes: %w", err)
	}
	return w, nil
}

func (w *MongoWriter) createIndexes(ctx context.Context) error {
	_, err := w.notices.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "identifier", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "run_id", Value: 1}},
		},
	})
	return err
}

// Write upserts records in one unordered bulk operation.
func (w *MongoWriter) Write(records []models.MergedRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	_, err := w.notices.BulkWrite(ctx, upsertModels(records, w.runID, time.Now().UTC()),
		options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("mongo: bulk upsert: %w", err)
	}
	return nil
}

// upsertModels builds one replace-or-insert per record.
func upsertModels(records []models.MergedRecord, runID string, now time.Time) []mongo.WriteModel {
	out := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		doc := noticeDocument{MergedRecord: r, RunID: runID, StoredAt: now}
		out = append(out, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"identifier": r.Identifier}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	return out
}

func (w *MongoWriter) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.client.Disconnect(ctx)
}
