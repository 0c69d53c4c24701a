package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/robertarktes/ticket-marketplace/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

// EnsureIndexes creates the lookup index used when tracing an actor's trail.
func (a *AuditLogger) EnsureIndexes(ctx context.Context) error {
	_, err := a.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "occurred_at", Value: -1}},
	})
	return errors.Wrap(err, "create audit index")
}

type AuditLog struct {
	ID          string    `bson:"_id"`
	Action      string    `bson:"action"`
	ActorID     string    `bson:"actor_id"`
	AggregateID string    `bson:"aggregate_id,omitempty"`
	OccurredAt  time.Time `bson:"occurred_at"`
	Timestamp   time.Time `bson:"timestamp"`
	Data        bson.M    `bson:"data"`
}

// Write stores rec keyed by its message id. A redelivered message hits the
// existing document and counts as written.
func (a *AuditLogger) Write(ctx context.Context, rec domain.AuditRecord) error {
	log := AuditLog{
		ID:          rec.MessageID,
		Action:      rec.Action,
		ActorID:     rec.ActorID,
		AggregateID: rec.AggregateID,
		OccurredAt:  rec.OccurredAt,
		Timestamp:   rec.ReceivedAt,
		Data:        bson.M(rec.Data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if mongo.IsDuplicateKeyError(err) {
		a.logger.WithField("message_id", rec.MessageID).Debug("audit record already stored")
		return nil
	}
	if err != nil {
		a.logger.WithError(err).WithField("message_id", rec.MessageID).Error("failed to insert audit log")
		return errors.Wrap(err, "insert audit log")
	}
	return nil
}
