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

func (s *MongoStore) GetState(ctx context.Context, monitorID primitive.ObjectID) (*MonitorState, error) {
	var st MonitorState
	err := s.db.Collection(collStates).FindOne(ctx, bson.M{"monitor_id": monitorID}).Decode(&st)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *MongoStore) ListStates(ctx context.Context) ([]*MonitorState, error) {
	cur, err := s.db.Collection(collStates).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var out []*MonitorState
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) UpsertState(ctx context.Context, st *MonitorState) error {
	st.UpdatedAt = time.Now().UTC()
	// The replacement document omits _id (zero value), so an existing
	// document keeps its id on replace.
	st.ID = primitive.NilObjectID
	_, err := s.db.Collection(collStates).ReplaceOne(ctx,
		bson.M{"monitor_id": st.MonitorID}, st, options.Replace().SetUpsert(true))
	return err
}

// SetStateAlert links or clears (empty alertID) the active alert on a
// monitor's state without touching its counters.
func (s *MongoStore) SetStateAlert(ctx context.Context, monitorID primitive.ObjectID, alertID, severity string) error {
	res, err := s.db.Collection(collStates).UpdateOne(ctx,
		bson.M{"monitor_id": monitorID},
		bson.M{"$set": bson.M{
			"active_alert_id":       alertID,
			"active_alert_severity": severity,
			"updated_at":            time.Now().UTC(),
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
