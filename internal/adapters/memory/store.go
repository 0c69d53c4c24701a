// Package memory is an in-process implementation of domain.Repository. Every
// transaction runs under one lock against a private copy of the state that
// replaces the live state only on commit, which makes transactions serial and
// all-or-nothing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
)

type state struct {
	events      map[uuid.UUID]domain.Event
	ticketTypes map[uuid.UUID]domain.TicketType
	orders      map[uuid.UUID]domain.Order
	tickets     map[uuid.UUID]domain.Ticket
	outbox      []domain.OutboxRecord
}

func newState() *state {
	return &state{
		events:      map[uuid.UUID]domain.Event{},
		ticketTypes: map[uuid.UUID]domain.TicketType{},
		orders:      map[uuid.UUID]domain.Order{},
		tickets:     map[uuid.UUID]domain.Ticket{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.ticketTypes {
		c.ticketTypes[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	c.outbox = append([]domain.OutboxRecord(nil), s.outbox...)
	return c
}

type Store struct {
	txMu sync.Mutex // serializes writers

	mu    sync.RWMutex // guards cur
	cur   *state
	fail  map[string]error
	hooks map[string]func()
}

var _ domain.Repository = (*Store)(nil)

func NewStore() *Store {
	return &Store{cur: newState(), fail: map[string]error{}, hooks: map[string]func(){}}
}

// FailOn makes the named Tx operation return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// BeforeOp registers fn to run right before the named Tx operation.
func (s *Store) BeforeOp(op string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.hooks, op)
		return
	}
	s.hooks[op] = fn
}

func (s *Store) before(op string) error {
	s.mu.RLock()
	hook, err := s.hooks[op], s.fail[op]
	s.mu.RUnlock()
	if hook != nil {
		hook()
	}
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.cur.clone()
	s.mu.RUnlock()

	if err := fn(&tx{store: s, st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cur = work
	s.mu.Unlock()
	return nil
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Outbox returns a copy of every outbox record written so far.
func (s *Store) Outbox() []domain.OutboxRecord {
	st := s.snapshot()
	return append([]domain.OutboxRecord(nil), st.outbox...)
}

func (s *Store) CountOrders() int {
	return len(s.snapshot().orders)
}

func (s *Store) CountTickets() int {
	return len(s.snapshot().tickets)
}

func (s *Store) GetTicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error) {
	st := s.snapshot()
	tt, ok := st.ticketTypes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	tt.Sold = st.sold(id)
	return &tt, nil
}

func (st *state) sold(ticketTypeID uuid.UUID) int {
	n := 0
	for _, t := range st.tickets {
		if t.TicketTypeID == ticketTypeID {
			n++
		}
	}
	return n
}

func (st *state) eventView(ev domain.Event) domain.Event {
	ev.TicketTypes = nil
	ev.TicketsSold = 0
	for _, tt := range st.ticketTypes {
		if tt.EventID != ev.ID {
			continue
		}
		tt.Sold = st.sold(tt.ID)
		ev.TicketTypes = append(ev.TicketTypes, tt)
		ev.TicketsSold += tt.Sold
	}
	order := st.positions(ev.ID)
	sort.Slice(ev.TicketTypes, func(i, j int) bool {
		return order[ev.TicketTypes[i].ID] < order[ev.TicketTypes[j].ID]
	})
	return ev
}

func (st *state) positions(eventID uuid.UUID) map[uuid.UUID]int {
	ev := st.events[eventID]
	pos := make(map[uuid.UUID]int, len(ev.TicketTypes))
	for i, tt := range ev.TicketTypes {
		pos[tt.ID] = i
	}
	return pos
}

func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	st := s.snapshot()
	ev, ok := st.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	view := st.eventView(ev)
	return &view, nil
}

func (s *Store) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	st := s.snapshot()
	var out []domain.Event
	for _, ev := range st.events {
		if filter.OrganizerID != "" && ev.OrganizerID != filter.OrganizerID {
			continue
		}
		if filter.UpcomingOnly && ev.StartsAt.Before(filter.Now) {
			continue
		}
		out = append(out, st.eventView(ev))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (st *state) orderView(o domain.Order) domain.Order {
	ev := st.events[o.EventID]
	o.Event = &domain.EventSummary{Name: ev.Name, StartsAt: ev.StartsAt, Location: ev.Location}
	o.Tickets = nil
	for _, t := range st.tickets {
		if t.OrderID != o.ID {
			continue
		}
		tt := st.ticketTypes[t.TicketTypeID]
		tt.Sold = st.sold(tt.ID)
		t.TicketType = &tt
		o.Tickets = append(o.Tickets, t)
	}
	sort.Slice(o.Tickets, func(i, j int) bool {
		return o.Tickets[i].ID.String() < o.Tickets[j].ID.String()
	})
	return o
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	st := s.snapshot()
	o, ok := st.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	view := st.orderView(o)
	return &view, nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	st := s.snapshot()
	var out []domain.Order
	for _, o := range st.orders {
		if o.BuyerID != filter.BuyerID {
			continue
		}
		if filter.EventID != nil && o.EventID != *filter.EventID {
			continue
		}
		out = append(out, st.orderView(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}
