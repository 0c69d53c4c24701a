package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
)

type tx struct {
	store *Store
	st    *state
}

func (t *tx) CreateEvent(ctx context.Context, ev domain.Event) error {
	if err := t.store.before("CreateEvent"); err != nil {
		return err
	}
	t.st.events[ev.ID] = ev
	for _, tt := range ev.TicketTypes {
		tt.EventID = ev.ID
		t.st.ticketTypes[tt.ID] = tt
	}
	return nil
}

func (t *tx) LockTicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error) {
	if err := t.store.before("LockTicketType"); err != nil {
		return nil, err
	}
	tt, ok := t.st.ticketTypes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &tt, nil
}

func (t *tx) CreateOrder(ctx context.Context, order domain.Order) error {
	if err := t.store.before("CreateOrder"); err != nil {
		return err
	}
	order.Tickets = nil
	order.Event = nil
	t.st.orders[order.ID] = order
	return nil
}

func (t *tx) CreateTickets(ctx context.Context, tickets []domain.Ticket) error {
	if err := t.store.before("CreateTickets"); err != nil {
		return err
	}
	for _, tk := range tickets {
		tk.TicketType = nil
		t.st.tickets[tk.ID] = tk
	}
	return nil
}

func (t *tx) Reserve(ctx context.Context, ticketTypeID uuid.UUID, quantity int) (int, error) {
	if err := t.store.before("Reserve"); err != nil {
		return 0, err
	}
	if quantity < 1 {
		return 0, domain.NewValidationError("quantity", "quantity must be at least 1")
	}
	tt, ok := t.st.ticketTypes[ticketTypeID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if tt.RemainingQuantity < quantity {
		return 0, domain.ErrInsufficientInventory
	}
	tt.RemainingQuantity -= quantity
	t.st.ticketTypes[ticketTypeID] = tt
	return tt.RemainingQuantity, nil
}

func (t *tx) InsertOutbox(ctx context.Context, record domain.OutboxRecord) error {
	if err := t.store.before("InsertOutbox"); err != nil {
		return err
	}
	t.st.outbox = append(t.st.outbox, record)
	return nil
}
