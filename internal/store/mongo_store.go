package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/annel0/netreplay/internal/replay"
)

// MongoConfig contains connection settings for the MongoDB recording store.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. netreplay
	Collection string // e.g. recordings
}

// MongoStore implements RecordingStore on a MongoDB backend. One document per
// recording, unique index on recording_id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

// NewMongoStore establishes connection and returns the store.
func NewMongoStore(cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "netreplay"
	}
	if cfg.Collection == "" {
		cfg.Collection = "recordings"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	// ping
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}

	if err := store.ensureIndexes(); err != nil {
		return nil, err
	}
	return store, nil
}

func (ms *MongoStore) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), ms.ctxTimeout)
	defer cancel()

	idx := mongo.IndexModel{
		Keys:    bson.D{{Key: "recording_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("recording_id_unique"),
	}
	_, err := ms.collection.Indexes().CreateOne(ctx, idx)
	return err
}

// Save upserts the recording document keyed by recording_id.
func (ms *MongoStore) Save(ctx context.Context, rec *replay.Recording) (string, error) {
	id := RecordingID(rec.StartTimeMillis)
	doc := docFromRecording(id, rec)

	opts := options.Replace().SetUpsert(true)
	_, err := ms.collection.ReplaceOne(ctx, bson.M{"recording_id": id}, &doc, opts)
	if err != nil {
		return "", fmt.Errorf("ошибка сохранения записи %s в MongoDB: %w", id, err)
	}
	return id, nil
}

// Load fetches and validates the recording document.
func (ms *MongoStore) Load(ctx context.Context, id string) (*replay.Recording, error) {
	var doc recordingDoc
	err := ms.collection.FindOne(ctx, bson.M{"recording_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения записи %s из MongoDB: %w", id, err)
	}

	return recordingFromDoc(&doc)
}

// List returns recording metadata ordered by start time.
func (ms *MongoStore) List(ctx context.Context) ([]RecordingInfo, error) {
	opts := options.Find().SetSort(bson.D{{Key: "start_time_ms", Value: 1}})
	cursor, err := ms.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса записей из MongoDB: %w", err)
	}
	defer cursor.Close(ctx)

	var infos []RecordingInfo
	for cursor.Next(ctx) {
		var doc recordingDoc
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		infos = append(infos, infoFromDoc(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("ошибка курсора MongoDB: %w", err)
	}
	return infos, nil
}

// Delete removes the recording document.
func (ms *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := ms.collection.DeleteOne(ctx, bson.M{"recording_id": id})
	if err != nil {
		return fmt.Errorf("ошибка удаления записи %s из MongoDB: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	return nil
}

// Close disconnects from MongoDB.
func (ms *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ms.ctxTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}
