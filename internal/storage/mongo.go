package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	collMonitors      = "monitors"
	collObservations  = "observations"
	collAlerts        = "alerts"
	collStates        = "monitor_states"
	collNotifications = "notification_queue"
)

// observationTTL is how long raw observations are kept before MongoDB
// expires them.
const observationTTL = 90 * 24 * time.Hour

// MongoStore implements Store using MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to uri, pings the deployment and ensures all
// indexes exist before returning.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collMonitors).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "active", Value: 1}}},
		{Keys: bson.D{{Key: "running", Value: 1}}},
		{Keys: bson.D{{Key: "created_by", Value: 1}}},
		{Keys: bson.D{{Key: "business_owner", Value: 1}}},
		{Keys: bson.D{{Key: "creation_time", Value: -1}}},
		{Keys: bson.D{{Key: "severity", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("monitors indexes: %w", err)
	}

	_, err = s.db.Collection(collObservations).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "monitor_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(observationTTL / time.Second)),
		},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("observations indexes: %w", err)
	}

	// The partial unique index is what makes CreateAlertIfNoneActive safe
	// under concurrency: a second insert for the same monitor while any
	// alert is in the active set fails with a duplicate key error.
	activeSet := bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: bson.A{
		AlertActive, AlertAcknowledged, AlertInRecovery,
	}}}}}
	_, err = s.db.Collection(collAlerts).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "monitor_id", Value: 1}, {Key: "triggered_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "severity", Value: 1}}},
		{Keys: bson.D{{Key: "triggered_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "monitor_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(activeSet).
				SetName("one_active_alert_per_monitor"),
		},
	})
	if err != nil {
		return fmt.Errorf("alerts indexes: %w", err)
	}

	_, err = s.db.Collection(collStates).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "monitor_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "current_status", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("monitor_states indexes: %w", err)
	}

	_, err = s.db.Collection(collNotifications).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "scheduled_at", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("notification_queue indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
