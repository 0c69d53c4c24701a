package domain

import "time"

// AuditRecord is one published domain event as kept in the audit trail.
type AuditRecord struct {
	MessageID   string
	Action      string
	ActorID     string
	AggregateID string
	OccurredAt  time.Time
	ReceivedAt  time.Time
	Data        map[string]interface{}
}
