package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypeOrderPlaced  = "order.placed"
	EventTypeEventCreated = "event.created"
)

type OrderPlacedPayload struct {
	OrderID      uuid.UUID       `json:"order_id"`
	EventID      uuid.UUID       `json:"event_id"`
	TicketTypeID uuid.UUID       `json:"ticket_type_id"`
	BuyerID      string          `json:"buyer_id"`
	Quantity     int             `json:"quantity"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Remaining    int             `json:"remaining"`
	PlacedAt     time.Time       `json:"placed_at"`
}

type EventCreatedPayload struct {
	EventID     uuid.UUID `json:"event_id"`
	OrganizerID string    `json:"organizer_id"`
	Name        string    `json:"name"`
	StartsAt    time.Time `json:"starts_at"`
	TicketTypes int       `json:"ticket_types"`
	Capacity    int       `json:"capacity"`
}

func NewOutboxRecord(aggregateType string, aggregateID uuid.UUID, eventType string, payload interface{}) (OutboxRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxRecord{}, err
	}
	return OutboxRecord{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
		Status:        "NEW",
		DedupeKey:     uuid.New().String(),
	}, nil
}
