package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const OrderStatusConfirmed = "CONFIRMED"

type Event struct {
	ID          uuid.UUID    `json:"id"`
	OrganizerID string       `json:"organizer_id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Location    string       `json:"location"`
	StartsAt    time.Time    `json:"starts_at"`
	CreatedAt   time.Time    `json:"created_at"`
	TicketTypes []TicketType `json:"ticket_types"`
	TicketsSold int          `json:"tickets_sold"`
}

// TicketType is a priced tier of an event. RemainingQuantity is the inventory
// ledger entry for the tier and never leaves [0, TotalQuantity].
type TicketType struct {
	ID                uuid.UUID       `json:"id"`
	EventID           uuid.UUID       `json:"event_id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	TotalQuantity     int             `json:"total_quantity"`
	RemainingQuantity int             `json:"remaining_quantity"`
	Sold              int             `json:"sold"`
}

type Order struct {
	ID          uuid.UUID       `json:"id"`
	EventID     uuid.UUID       `json:"event_id"`
	BuyerID     string          `json:"buyer_id"`
	BuyerName   string          `json:"buyer_name"`
	BuyerEmail  string          `json:"buyer_email"`
	BuyerPhone  string          `json:"buyer_phone"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	Event       *EventSummary   `json:"event,omitempty"`
	Tickets     []Ticket        `json:"tickets"`
}

type EventSummary struct {
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
	Location string    `json:"location"`
}

type Ticket struct {
	ID           uuid.UUID   `json:"id"`
	OrderID      uuid.UUID   `json:"order_id"`
	TicketTypeID uuid.UUID   `json:"ticket_type_id"`
	TicketType   *TicketType `json:"ticket_type,omitempty"`
}

type EventFilter struct {
	OrganizerID  string
	UpcomingOnly bool
	Now          time.Time
}

type OrderFilter struct {
	BuyerID string
	EventID *uuid.UUID
}

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED
	DedupeKey     string
}
