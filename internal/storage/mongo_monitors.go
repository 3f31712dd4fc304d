package storage

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoStore) CreateMonitor(ctx context.Context, m *Monitor) error {
	now := time.Now().UTC()
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.CreationTime.IsZero() {
		m.CreationTime = now
	}
	m.UpdatedAt = now

	_, err := s.db.Collection(collMonitors).InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (s *MongoStore) GetMonitor(ctx context.Context, id primitive.ObjectID) (*Monitor, error) {
	var m Monitor
	err := s.db.Collection(collMonitors).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MongoStore) GetMonitorByName(ctx context.Context, name string) (*Monitor, error) {
	var m Monitor
	err := s.db.Collection(collMonitors).FindOne(ctx, bson.M{"name": name}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MongoStore) ListMonitors(ctx context.Context) ([]*Monitor, error) {
	return s.findMonitors(ctx, bson.M{})
}

// ListSchedulable returns the monitors the scheduler may run: both active
// and running must be set.
func (s *MongoStore) ListSchedulable(ctx context.Context) ([]*Monitor, error) {
	return s.findMonitors(ctx, bson.M{"active": true, "running": true})
}

func (s *MongoStore) findMonitors(ctx context.Context, filter bson.M) ([]*Monitor, error) {
	cur, err := s.db.Collection(collMonitors).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []*Monitor
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) UpdateMonitor(ctx context.Context, m *Monitor) error {
	m.UpdatedAt = time.Now().UTC()
	res, err := s.db.Collection(collMonitors).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMonitor removes the monitor and its runtime state. Observations
// and alerts are kept as history; observations expire via TTL.
func (s *MongoStore) DeleteMonitor(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.db.Collection(collMonitors).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	_, err = s.db.Collection(collStates).DeleteOne(ctx, bson.M{"monitor_id": id})
	return err
}
