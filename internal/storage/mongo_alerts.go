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

// activeStatuses is the filter for alerts that block a new open.
var activeStatuses = bson.M{"$in": bson.A{AlertActive, AlertAcknowledged, AlertInRecovery}}

// CreateAlertIfNoneActive inserts a, unless the monitor already has an
// alert in the active set. Returns whether the insert happened; losing the
// race is not an error.
func (s *MongoStore) CreateAlertIfNoneActive(ctx context.Context, a *Alert) (bool, error) {
	_, err := s.db.Collection(collAlerts).InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MongoStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	var a Alert
	err := s.db.Collection(collAlerts).FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *MongoStore) GetActiveAlert(ctx context.Context, monitorID primitive.ObjectID) (*Alert, error) {
	var a Alert
	err := s.db.Collection(collAlerts).FindOne(ctx,
		bson.M{"monitor_id": monitorID, "status": activeStatuses}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *MongoStore) ListActiveAlerts(ctx context.Context) ([]*Alert, error) {
	return s.findAlerts(ctx, bson.M{"status": activeStatuses}, 0)
}

func (s *MongoStore) ListAlerts(ctx context.Context, monitorID primitive.ObjectID, limit int) ([]*Alert, error) {
	filter := bson.M{}
	if !monitorID.IsZero() {
		filter["monitor_id"] = monitorID
	}
	return s.findAlerts(ctx, filter, limit)
}

func (s *MongoStore) findAlerts(ctx context.Context, filter bson.M, limit int) ([]*Alert, error) {
	opts := options.Find().SetSort(bson.D{{Key: "triggered_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(collAlerts).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []*Alert
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) UpdateAlert(ctx context.Context, a *Alert) error {
	res, err := s.db.Collection(collAlerts).ReplaceOne(ctx, bson.M{"_id": a.ID}, a)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendNotification records one delivery attempt on the alert and bumps
// last_notification_at, which gates renotification and daily reminders.
func (s *MongoStore) AppendNotification(ctx context.Context, alertID string, n NotificationLog) error {
	res, err := s.db.Collection(collAlerts).UpdateOne(ctx,
		bson.M{"_id": alertID},
		bson.M{
			"$push": bson.M{"notifications_sent": n},
			"$set":  bson.M{"last_notification_at": n.SentAt},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) EnqueueNotification(ctx context.Context, q *QueuedNotification) error {
	if q.ID.IsZero() {
		q.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	if q.ScheduledAt.IsZero() {
		q.ScheduledAt = now
	}
	_, err := s.db.Collection(collNotifications).InsertOne(ctx, q)
	return err
}

// PurgeRecoveredAlerts removes recovered alerts whose recovery predates
// before. Alerts in the active set are never touched.
func (s *MongoStore) PurgeRecoveredAlerts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(collAlerts).DeleteMany(ctx, bson.M{
		"status":       AlertRecovered,
		"recovered_at": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// PurgeQueuedNotifications removes queue entries created before the cutoff.
func (s *MongoStore) PurgeQueuedNotifications(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(collNotifications).DeleteMany(ctx, bson.M{
		"created_at": bson.M{"$lt": before},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
