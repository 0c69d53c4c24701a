package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/shopspring/decimal"
)

type txRepo struct {
	tx pgx.Tx
}

var _ domain.Tx = (*txRepo)(nil)

func (t *txRepo) CreateEvent(ctx context.Context, ev domain.Event) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO events (id, organizer_id, name, description, location, starts_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, ev.OrganizerID, ev.Name, ev.Description, ev.Location, ev.StartsAt, ev.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert event")
	}

	b := &pgx.Batch{}
	for i, tt := range ev.TicketTypes {
		b.Queue(`
			INSERT INTO ticket_types (id, event_id, name, price, total_quantity, remaining_quantity, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, tt.ID, ev.ID, tt.Name, tt.Price.String(), tt.TotalQuantity, tt.RemainingQuantity, i)
	}
	return errors.Wrap(t.execBatch(ctx, b), "insert ticket types")
}

func (t *txRepo) LockTicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error) {
	var tt domain.TicketType
	var price string
	err := t.tx.QueryRow(ctx, `
		SELECT id, event_id, name, price::STRING, total_quantity, remaining_quantity
		FROM ticket_types WHERE id = $1 FOR UPDATE
	`, id).Scan(&tt.ID, &tt.EventID, &tt.Name, &price, &tt.TotalQuantity, &tt.RemainingQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock ticket type")
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return nil, errors.Wrapf(err, "parse price of ticket type %s", id)
	}
	tt.Price = p
	return &tt, nil
}

func (t *txRepo) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, event_id, buyer_id, buyer_name, buyer_email, buyer_phone, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, order.ID, order.EventID, order.BuyerID, order.BuyerName, order.BuyerEmail, order.BuyerPhone,
		order.TotalAmount.String(), order.Status, order.CreatedAt)
	return errors.Wrap(err, "insert order")
}

// CreateTickets inserts all ticket rows in one round trip. A pgx.Tx is not
// safe for concurrent use, so the rows go through a batch rather than
// parallel statements.
func (t *txRepo) CreateTickets(ctx context.Context, tickets []domain.Ticket) error {
	b := &pgx.Batch{}
	for _, tk := range tickets {
		b.Queue(`INSERT INTO tickets (id, order_id, ticket_type_id) VALUES ($1, $2, $3)`, tk.ID, tk.OrderID, tk.TicketTypeID)
	}
	return errors.Wrap(t.execBatch(ctx, b), "insert tickets")
}

func (t *txRepo) Reserve(ctx context.Context, ticketTypeID uuid.UUID, quantity int) (int, error) {
	if quantity < 1 {
		return 0, domain.NewValidationError("quantity", "quantity must be at least 1")
	}

	var remaining int
	err := t.tx.QueryRow(ctx, `
		UPDATE ticket_types SET remaining_quantity = remaining_quantity - $2
		WHERE id = $1 AND remaining_quantity >= $2
		RETURNING remaining_quantity
	`, ticketTypeID, quantity).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, errors.Wrap(err, "reserve inventory")
	}

	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ticket_types WHERE id = $1)`, ticketTypeID).Scan(&exists); err != nil {
		return 0, errors.Wrap(err, "check ticket type")
	}
	if !exists {
		return 0, domain.ErrNotFound
	}
	return 0, domain.ErrInsufficientInventory
}

func (t *txRepo) execBatch(ctx context.Context, b *pgx.Batch) error {
	br := t.tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}
