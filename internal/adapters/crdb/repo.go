package crdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/robertarktes/ticket-marketplace/internal/observability"
	"github.com/shopspring/decimal"
)

const (
	SerializationFailureCode = "40001"
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ domain.Repository = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// WithTx runs fn inside a SERIALIZABLE transaction. A retryable conflict
// reported by the database, either from fn or at commit, comes back as
// domain.ErrSerializationFailure.
func (r *Repository) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(&txRepo{tx: tx}); err != nil {
		return mapTxError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapTxError(errors.Wrap(err, "commit tx"))
	}
	return nil
}

func mapTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
		return errors.Mark(err, domain.ErrSerializationFailure)
	}
	return err
}

// readTx gives multi-statement reads a single consistent snapshot.
func (r *Repository) readTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return errors.Wrap(err, "begin read tx")
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

const ticketTypeColumns = `tt.id, tt.event_id, tt.name, tt.price::STRING, tt.total_quantity, tt.remaining_quantity,
	(SELECT count(*) FROM tickets t WHERE t.ticket_type_id = tt.id)`

func scanTicketType(row scanner) (domain.TicketType, error) {
	var tt domain.TicketType
	var price string
	if err := row.Scan(&tt.ID, &tt.EventID, &tt.Name, &price, &tt.TotalQuantity, &tt.RemainingQuantity, &tt.Sold); err != nil {
		return tt, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return tt, errors.Wrapf(err, "parse price of ticket type %s", tt.ID)
	}
	tt.Price = p
	return tt, nil
}

func (r *Repository) GetTicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error) {
	tt, err := scanTicketType(r.pool.QueryRow(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types tt WHERE tt.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get ticket type")
	}
	return &tt, nil
}

const eventColumns = `e.id, e.organizer_id, e.name, e.description, e.location, e.starts_at, e.created_at`

func scanEvent(row scanner) (domain.Event, error) {
	var ev domain.Event
	err := row.Scan(&ev.ID, &ev.OrganizerID, &ev.Name, &ev.Description, &ev.Location, &ev.StartsAt, &ev.CreatedAt)
	return ev, err
}

func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	var ev domain.Event
	err := r.readTx(ctx, func(tx pgx.Tx) error {
		var err error
		ev, err = scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "get event")
		}

		rows, err := tx.Query(ctx, `SELECT `+ticketTypeColumns+` FROM ticket_types tt WHERE tt.event_id = $1 ORDER BY tt.position`, id)
		if err != nil {
			return errors.Wrap(err, "query ticket types")
		}
		defer rows.Close()
		for rows.Next() {
			tt, err := scanTicketType(rows)
			if err != nil {
				return errors.Wrap(err, "scan ticket type")
			}
			ev.TicketTypes = append(ev.TicketTypes, tt)
			ev.TicketsSold += tt.Sold
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func eventWhere(filter domain.EventFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.OrganizerID != "" {
		args = append(args, filter.OrganizerID)
		conds = append(conds, fmt.Sprintf("e.organizer_id = $%d", len(args)))
	}
	if filter.UpcomingOnly {
		args = append(args, filter.Now)
		conds = append(conds, fmt.Sprintf("e.starts_at >= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *Repository) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	where, args := eventWhere(filter)
	var events []domain.Event
	err := r.readTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+eventColumns+` FROM events e`+where+` ORDER BY e.starts_at ASC, e.id`, args...)
		if err != nil {
			return errors.Wrap(err, "query events")
		}
		index := map[uuid.UUID]int{}
		for rows.Next() {
			ev, err := scanEvent(rows)
			if err != nil {
				rows.Close()
				return errors.Wrap(err, "scan event")
			}
			index[ev.ID] = len(events)
			events = append(events, ev)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `SELECT `+ticketTypeColumns+`
			FROM ticket_types tt JOIN events e ON e.id = tt.event_id`+where+`
			ORDER BY tt.event_id, tt.position`, args...)
		if err != nil {
			return errors.Wrap(err, "query ticket types")
		}
		defer rows.Close()
		for rows.Next() {
			tt, err := scanTicketType(rows)
			if err != nil {
				return errors.Wrap(err, "scan ticket type")
			}
			i, ok := index[tt.EventID]
			if !ok {
				continue
			}
			events[i].TicketTypes = append(events[i].TicketTypes, tt)
			events[i].TicketsSold += tt.Sold
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

const orderColumns = `o.id, o.event_id, o.buyer_id, o.buyer_name, o.buyer_email, o.buyer_phone,
	o.total_amount::STRING, o.status, o.created_at, e.name, e.starts_at, e.location`

func scanOrder(row scanner) (domain.Order, error) {
	var o domain.Order
	var total string
	summary := &domain.EventSummary{}
	err := row.Scan(&o.ID, &o.EventID, &o.BuyerID, &o.BuyerName, &o.BuyerEmail, &o.BuyerPhone,
		&total, &o.Status, &o.CreatedAt, &summary.Name, &summary.StartsAt, &summary.Location)
	if err != nil {
		return o, err
	}
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return o, errors.Wrapf(err, "parse total of order %s", o.ID)
	}
	o.TotalAmount = amount
	o.Event = summary
	return o, nil
}

const ticketColumns = `t.id, t.order_id, ` + ticketTypeColumns

func scanTicket(row scanner) (domain.Ticket, error) {
	var t domain.Ticket
	var tt domain.TicketType
	var price string
	err := row.Scan(&t.ID, &t.OrderID, &tt.ID, &tt.EventID, &tt.Name, &price, &tt.TotalQuantity, &tt.RemainingQuantity, &tt.Sold)
	if err != nil {
		return t, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return t, errors.Wrapf(err, "parse price of ticket type %s", tt.ID)
	}
	tt.Price = p
	t.TicketTypeID = tt.ID
	t.TicketType = &tt
	return t, nil
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	err := r.readTx(ctx, func(tx pgx.Tx) error {
		var err error
		order, err = scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+`
			FROM orders o JOIN events e ON e.id = o.event_id WHERE o.id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "get order")
		}

		rows, err := tx.Query(ctx, `SELECT `+ticketColumns+`
			FROM tickets t JOIN ticket_types tt ON tt.id = t.ticket_type_id
			WHERE t.order_id = $1 ORDER BY t.id`, id)
		if err != nil {
			return errors.Wrap(err, "query tickets")
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTicket(rows)
			if err != nil {
				return errors.Wrap(err, "scan ticket")
			}
			order.Tickets = append(order.Tickets, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *Repository) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	where := " WHERE o.buyer_id = $1"
	args := []any{filter.BuyerID}
	if filter.EventID != nil {
		args = append(args, *filter.EventID)
		where += " AND o.event_id = $2"
	}

	var orders []domain.Order
	err := r.readTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+orderColumns+`
			FROM orders o JOIN events e ON e.id = o.event_id`+where+`
			ORDER BY o.created_at DESC, o.id`, args...)
		if err != nil {
			return errors.Wrap(err, "query orders")
		}
		index := map[uuid.UUID]int{}
		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				rows.Close()
				return errors.Wrap(err, "scan order")
			}
			index[o.ID] = len(orders)
			orders = append(orders, o)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `SELECT `+ticketColumns+`
			FROM tickets t
			JOIN orders o ON o.id = t.order_id
			JOIN ticket_types tt ON tt.id = t.ticket_type_id`+where+`
			ORDER BY t.order_id, t.id`, args...)
		if err != nil {
			return errors.Wrap(err, "query tickets")
		}
		defer rows.Close()
		for rows.Next() {
			t, err := scanTicket(rows)
			if err != nil {
				return errors.Wrap(err, "scan ticket")
			}
			if i, ok := index[t.OrderID]; ok {
				orders[i].Tickets = append(orders[i].Tickets, t)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}
