package eventstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sentrymesh/nyxsentry/internal/sentry/model"
)

// Mongo is an alternative durable-log backend for deployments that
// already run a MongoDB fleet for their other telemetry.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongo connects to uri, selects database/collection, and ensures
// the indices matching §6's schema exist.
func NewMongo(uri, database, collection string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("eventstore: connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("eventstore: pinging mongodb: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	indices := []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "timestamp_utc", Value: -1}}},
		{Keys: bson.D{{Key: "event_type", Value: 1}}},
		{Keys: bson.D{{Key: "sensor", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indices); err != nil {
		return nil, fmt.Errorf("eventstore: creating mongodb indices: %w", err)
	}

	return &Mongo{client: client, collection: coll}, nil
}

// Insert upserts event by event_id and prunes the oldest excess rows
// beyond Cap by timestamp_utc ascending.
func (m *Mongo) Insert(ctx context.Context, event model.EventEnvelope) error {
	_, err := m.collection.UpdateOne(ctx,
		bson.M{"event_id": event.EventID},
		bson.M{"$setOnInsert": event},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("eventstore: inserting event %s: %w", event.EventID, err)
	}

	total, err := m.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("eventstore: counting events: %w", err)
	}
	if total <= Cap {
		return nil
	}

	excess := total - Cap
	cursor, err := m.collection.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "timestamp_utc", Value: 1}}).SetLimit(excess).SetProjection(bson.M{"event_id": 1}))
	if err != nil {
		return fmt.Errorf("eventstore: finding prune candidates: %w", err)
	}
	defer cursor.Close(ctx)

	var staleIDs []string
	for cursor.Next(ctx) {
		var row struct {
			EventID string `bson:"event_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return fmt.Errorf("eventstore: decoding prune candidate: %w", err)
		}
		staleIDs = append(staleIDs, row.EventID)
	}
	if len(staleIDs) == 0 {
		return nil
	}
	if _, err := m.collection.DeleteMany(ctx, bson.M{"event_id": bson.M{"$in": staleIDs}}); err != nil {
		return fmt.Errorf("eventstore: pruning excess events: %w", err)
	}
	return nil
}

// List applies event_type/sensor filters at the query layer and the
// substring search client-side, matching the embedded backend.
func (m *Mongo) List(ctx context.Context, q ListQuery) ([]model.EventEnvelope, error) {
	filter := bson.M{}
	if q.EventType != nil {
		filter["event_type"] = bson.M{"$regex": *q.EventType, "$options": "i"}
	}
	if q.Sensor != nil {
		filter["sensor"] = bson.M{"$regex": *q.Sensor, "$options": "i"}
	}

	scanLimit := int64(maxScan(q.Limit))
	cursor, err := m.collection.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "timestamp_utc", Value: -1}}).SetLimit(scanLimit))
	if err != nil {
		return nil, fmt.Errorf("eventstore: querying events: %w", err)
	}
	defer cursor.Close(ctx)

	var result []model.EventEnvelope
	for cursor.Next(ctx) {
		var ev model.EventEnvelope
		if err := cursor.Decode(&ev); err != nil {
			return nil, fmt.Errorf("eventstore: decoding event: %w", err)
		}
		if q.Search != nil && *q.Search != "" && !containsSearchTerm(ev, strings.ToLower(*q.Search)) {
			continue
		}
		result = append(result, ev)
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}
	return result, cursor.Err()
}

// Count returns the collection's document count.
func (m *Mongo) Count(ctx context.Context) (uint64, error) {
	count, err := m.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("eventstore: counting events: %w", err)
	}
	return uint64(count), nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("eventstore: disconnecting mongodb: %w", err)
	}
	return nil
}
