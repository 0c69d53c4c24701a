package domain

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the storage contract shared by the catalog and ordering
// services. Reads outside WithTx may be stale; anything that decides on
// inventory must happen inside the transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetTicketType(ctx context.Context, id uuid.UUID) (*TicketType, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	Ping(ctx context.Context) error
}

// Tx is a single atomic unit. Everything written through it commits or rolls
// back together.
type Tx interface {
	CreateEvent(ctx context.Context, event Event) error
	// LockTicketType returns a transactionally consistent view of the tier.
	LockTicketType(ctx context.Context, id uuid.UUID) (*TicketType, error)
	CreateOrder(ctx context.Context, order Order) error
	CreateTickets(ctx context.Context, tickets []Ticket) error
	// Reserve decrements remaining inventory by quantity and returns what is
	// left. It fails with ErrNotFound or ErrInsufficientInventory and never
	// lets the counter go below zero.
	Reserve(ctx context.Context, ticketTypeID uuid.UUID, quantity int) (int, error)
	InsertOutbox(ctx context.Context, record OutboxRecord) error
}
