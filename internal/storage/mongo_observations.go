package storage

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoStore) InsertObservation(ctx context.Context, o *Observation) error {
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Collection(collObservations).InsertOne(ctx, o)
	return err
}

func (s *MongoStore) ListObservations(ctx context.Context, monitorID primitive.ObjectID, limit int) ([]*Observation, error) {
	if limit <= 0 {
		limit = 100
	}
	cur, err := s.db.Collection(collObservations).Find(ctx,
		bson.M{"monitor_id": monitorID},
		options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: -1}}).
			SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	var out []*Observation
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
