package ordering_test

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-marketplace/internal/adapters/memory"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/robertarktes/ticket-marketplace/internal/observability"
	"github.com/robertarktes/ticket-marketplace/internal/ordering"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"
)

const buyer = "buyer-1"

type OrderingSuite struct {
	suite.Suite
	ctx   context.Context
	store *memory.Store
	svc   ordering.Service
	event domain.Event
	tier  domain.TicketType
}

func TestOrderingSuite(t *testing.T) {
	suite.Run(t, new(OrderingSuite))
}

func (s *OrderingSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.svc = ordering.NewService(s.store, observability.NewNopLogger(),
		ordering.WithMaxAttempts(3),
		ordering.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
	s.event = s.seedEvent("20.00", 5)
	s.tier = s.event.TicketTypes[0]
}

func (s *OrderingSuite) seedEvent(price string, quantity int) domain.Event {
	ev := domain.NewEvent(domain.CreateEventRequest{
		OrganizerID: "org-1",
		Name:        "Jazz Night",
		Description: "Live quartet",
		Location:    "Blue Hall",
		StartsAt:    time.Now().Add(72 * time.Hour),
		TicketTypes: []domain.TicketTypeRequest{
			{Name: "General", Price: decimal.RequireFromString(price), Quantity: quantity},
		},
	}, time.Now())
	err := s.store.WithTx(s.ctx, func(tx domain.Tx) error {
		return tx.CreateEvent(s.ctx, ev)
	})
	s.Require().NoError(err)
	return ev
}

func (s *OrderingSuite) request(quantity int) domain.PlaceOrderRequest {
	return domain.PlaceOrderRequest{
		EventID:      s.event.ID,
		TicketTypeID: s.tier.ID,
		Quantity:     quantity,
		BuyerID:      buyer,
		BuyerName:    "Ada",
		BuyerEmail:   "ada@example.com",
		BuyerPhone:   "+15550100",
	}
}

func (s *OrderingSuite) remaining() int {
	tt, err := s.store.GetTicketType(s.ctx, s.tier.ID)
	s.Require().NoError(err)
	return tt.RemainingQuantity
}

func (s *OrderingSuite) assertUnchanged() {
	s.Equal(5, s.remaining())
	s.Zero(s.store.CountOrders())
	s.Zero(s.store.CountTickets())
}

func (s *OrderingSuite) TestPlaceOrder_DecrementsAndRecomputesTotal() {
	order, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(3))
	s.Require().NoError(err)

	s.Equal(domain.OrderStatusConfirmed, order.Status)
	s.True(order.TotalAmount.Equal(decimal.RequireFromString("60.00")), order.TotalAmount.String())
	s.Len(order.Tickets, 3)
	s.Equal(2, s.remaining())
	s.Equal(3, s.store.CountTickets())

	_, err = s.svc.PlaceOrder(s.ctx, buyer, s.request(3))
	s.True(errors.Is(err, domain.ErrInsufficientInventory), "got %v", err)
	s.Equal(domain.KindInsufficientInventory, domain.KindOf(err))
	s.Equal(2, s.remaining())
	s.Equal(1, s.store.CountOrders())
}

func (s *OrderingSuite) TestPlaceOrder_ExactRemainingSucceeds() {
	_, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(5))
	s.Require().NoError(err)
	s.Zero(s.remaining())
}

func (s *OrderingSuite) TestPlaceOrder_WritesOutboxRecord() {
	order, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(2))
	s.Require().NoError(err)

	records := s.store.Outbox()
	s.Require().Len(records, 1)
	s.Equal(domain.EventTypeOrderPlaced, records[0].EventType)
	s.Equal(order.ID, records[0].AggregateID)
}

func (s *OrderingSuite) TestPlaceOrder_ClientTotalIsAdvisory() {
	req := s.request(2)
	wrong := decimal.RequireFromString("1.00")
	req.TotalAmount = &wrong

	order, err := s.svc.PlaceOrder(s.ctx, buyer, req)
	s.Require().NoError(err)
	s.True(order.TotalAmount.Equal(decimal.RequireFromString("40.00")))
}

func (s *OrderingSuite) TestPlaceOrder_Unauthenticated() {
	_, err := s.svc.PlaceOrder(s.ctx, "", s.request(1))
	s.Equal(domain.KindUnauthorized, domain.KindOf(err))
	s.assertUnchanged()
}

func (s *OrderingSuite) TestPlaceOrder_BuyerMismatch() {
	_, err := s.svc.PlaceOrder(s.ctx, "someone-else", s.request(1))
	s.Equal(domain.KindUnauthorized, domain.KindOf(err))
	s.assertUnchanged()
}

func (s *OrderingSuite) TestPlaceOrder_UnknownTicketType() {
	req := s.request(1)
	req.TicketTypeID = uuid.New()

	_, err := s.svc.PlaceOrder(s.ctx, buyer, req)
	s.Equal(domain.KindNotFound, domain.KindOf(err))
	s.assertUnchanged()
}

func (s *OrderingSuite) TestPlaceOrder_TicketTypeOfAnotherEvent() {
	other := s.seedEvent("10.00", 5)
	req := s.request(1)
	req.EventID = other.ID

	_, err := s.svc.PlaceOrder(s.ctx, buyer, req)
	s.Equal(domain.KindNotFound, domain.KindOf(err))
	s.assertUnchanged()
}

func (s *OrderingSuite) TestPlaceOrder_InvalidRequest() {
	req := s.request(0)
	req.BuyerEmail = "nope"

	_, err := s.svc.PlaceOrder(s.ctx, buyer, req)
	s.Equal(domain.KindValidation, domain.KindOf(err))
	var verr *domain.ValidationError
	s.Require().True(errors.As(err, &verr))
	s.Contains(verr.Fields, "quantity")
	s.Contains(verr.Fields, "buyer_email")
	s.assertUnchanged()
}

func (s *OrderingSuite) TestPlaceOrder_TotalBeyondStorableRange() {
	s.event = s.seedEvent("9999999999.99", 5)
	s.tier = s.event.TicketTypes[0]

	_, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(2))
	s.Equal(domain.KindValidation, domain.KindOf(err))
	s.Equal(5, s.remaining())
	s.Zero(s.store.CountOrders())

	order, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(1))
	s.Require().NoError(err)
	s.True(order.TotalAmount.Equal(domain.MaxAmount))
}

func (s *OrderingSuite) TestPlaceOrder_MidTransactionFailureLeavesNoOrphans() {
	for _, op := range []string{"CreateTickets", "Reserve", "InsertOutbox"} {
		s.Run(op, func() {
			s.store.FailOn(op, errors.New("disk on fire"))
			defer s.store.FailOn(op, nil)

			_, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(2))
			s.Equal(domain.KindInternal, domain.KindOf(err))
			s.assertUnchanged()
			s.Empty(s.store.Outbox())
		})
	}
}

// readSignal reports the remaining quantity each precondition read saw.
type readSignal struct {
	*memory.Store
	seen chan int
}

func (r readSignal) GetTicketType(ctx context.Context, id uuid.UUID) (*domain.TicketType, error) {
	tt, err := r.Store.GetTicketType(ctx, id)
	if err == nil {
		r.seen <- tt.RemainingQuantity
	}
	return tt, err
}

// A competing placement that passed its precondition read must be stopped by
// the re-check inside the atomic unit.
func (s *OrderingSuite) TestPlaceOrder_RecheckInsideUnit() {
	competitor := readSignal{Store: s.store, seen: make(chan int, 1)}
	other := ordering.NewService(competitor, observability.NewNopLogger())

	done := make(chan error, 1)
	s.store.BeforeOp("LockTicketType", func() {
		s.store.BeforeOp("LockTicketType", nil)
		go func() {
			_, err := other.PlaceOrder(s.ctx, "buyer-2", domain.PlaceOrderRequest{
				EventID: s.event.ID, TicketTypeID: s.tier.ID, Quantity: 5,
				BuyerID: "buyer-2", BuyerName: "Bo", BuyerEmail: "bo@example.com", BuyerPhone: "1",
			})
			done <- err
		}()
		// Hold the first unit open until the competitor has read the
		// untouched inventory.
		s.Equal(5, <-competitor.seen)
	})

	order, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(1))
	s.Require().NoError(err)
	s.NotNil(order)

	s.Equal(domain.KindInsufficientInventory, domain.KindOf(<-done))
	s.Equal(4, s.remaining())
	s.Equal(1, s.store.CountOrders())
}

func (s *OrderingSuite) TestPlaceOrder_RetriesSerializationFailure() {
	restart := errors.Mark(errors.New("restart transaction"), domain.ErrSerializationFailure)
	s.store.FailOn("CreateOrder", restart)
	s.store.BeforeOp("CreateOrder", func() {
		s.store.FailOn("CreateOrder", nil)
	})

	order, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(2))
	s.Require().NoError(err)
	s.Len(order.Tickets, 2)
	s.Equal(3, s.remaining())
	s.Equal(1, s.store.CountOrders())
}

func (s *OrderingSuite) TestPlaceOrder_GivesUpAfterMaxAttempts() {
	restart := errors.Mark(errors.New("restart transaction"), domain.ErrSerializationFailure)
	s.store.FailOn("CreateOrder", restart)

	_, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(2))
	s.Equal(domain.KindTransient, domain.KindOf(err))
	s.assertUnchanged()
}

func (s *OrderingSuite) TestPlaceOrder_NoOversellUnderConcurrency() {
	const attempts = 20
	var g errgroup.Group
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			_, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(1))
			results <- err
			return nil
		})
	}
	s.Require().NoError(g.Wait())
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		s.Equal(domain.KindInsufficientInventory, domain.KindOf(err))
	}
	s.Equal(5, succeeded)
	s.Zero(s.remaining())
	s.Equal(5, s.store.CountTickets())
}

func (s *OrderingSuite) TestListOrders_ScopedToBuyerNewestFirst() {
	first, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(1))
	s.Require().NoError(err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(1))
	s.Require().NoError(err)

	otherReq := s.request(1)
	otherReq.BuyerID = "buyer-2"
	_, err = s.svc.PlaceOrder(s.ctx, "buyer-2", otherReq)
	s.Require().NoError(err)

	orders, err := s.svc.ListOrders(s.ctx, buyer, nil)
	s.Require().NoError(err)
	s.Require().Len(orders, 2)
	s.Equal(second.ID, orders[0].ID)
	s.Equal(first.ID, orders[1].ID)
	for _, o := range orders {
		s.Equal(buyer, o.BuyerID)
		s.Require().NotNil(o.Event)
		s.Equal("Jazz Night", o.Event.Name)
		s.Require().Len(o.Tickets, 1)
		s.Equal("General", o.Tickets[0].TicketType.Name)
	}
}

func (s *OrderingSuite) TestListOrders_FilterByEvent() {
	_, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(1))
	s.Require().NoError(err)

	other := uuid.New()
	orders, err := s.svc.ListOrders(s.ctx, buyer, &other)
	s.Require().NoError(err)
	s.NotNil(orders)
	s.Empty(orders)

	orders, err = s.svc.ListOrders(s.ctx, buyer, &s.event.ID)
	s.Require().NoError(err)
	s.Len(orders, 1)
}

func (s *OrderingSuite) TestListOrders_Unauthenticated() {
	_, err := s.svc.ListOrders(s.ctx, "", nil)
	s.Equal(domain.KindUnauthorized, domain.KindOf(err))
}

func (s *OrderingSuite) TestGetOrder_HiddenFromOtherBuyers() {
	order, err := s.svc.PlaceOrder(s.ctx, buyer, s.request(1))
	s.Require().NoError(err)

	got, err := s.svc.GetOrder(s.ctx, buyer, order.ID)
	s.Require().NoError(err)
	s.Equal(order.ID, got.ID)

	_, err = s.svc.GetOrder(s.ctx, "buyer-2", order.ID)
	s.Equal(domain.KindNotFound, domain.KindOf(err))

	_, err = s.svc.GetOrder(s.ctx, buyer, uuid.New())
	s.Equal(domain.KindNotFound, domain.KindOf(err))
}
