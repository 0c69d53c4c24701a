package ordering

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/robertarktes/ticket-marketplace/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Service interface {
	PlaceOrder(ctx context.Context, principalID string, req domain.PlaceOrderRequest) (*domain.Order, error)
	ListOrders(ctx context.Context, principalID string, eventID *uuid.UUID) ([]domain.Order, error)
	GetOrder(ctx context.Context, principalID string, orderID uuid.UUID) (*domain.Order, error)
}

type service struct {
	repo        domain.Repository
	logger      observability.Logger
	tracer      trace.Tracer
	now         func() time.Time
	maxAttempts int
	newBackOff  func() backoff.BackOff
}

type Option func(*service)

// WithMaxAttempts bounds how many times a placement is started over after a
// serialization failure. One means no retry.
func WithMaxAttempts(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func WithBackOff(fn func() backoff.BackOff) Option {
	return func(s *service) { s.newBackOff = fn }
}

func NewService(repo domain.Repository, logger observability.Logger, opts ...Option) Service {
	s := &service{
		repo:        repo,
		logger:      logger,
		tracer:      otel.Tracer("ordering"),
		now:         time.Now,
		maxAttempts: 3,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) PlaceOrder(ctx context.Context, principalID string, req domain.PlaceOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "ordering.PlaceOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket_type_id", req.TicketTypeID.String()),
		attribute.Int("quantity", req.Quantity),
	)

	log := observability.LoggerFromContext(ctx, s.logger).
		WithField("ticket_type_id", req.TicketTypeID).
		WithField("quantity", req.Quantity)

	order, err := s.placeOrder(ctx, principalID, req)
	if err != nil {
		kind := domain.KindOf(err)
		observability.OrderRejections.WithLabelValues(string(kind)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		if kind == domain.KindInternal {
			log.WithError(err).Error("order placement failed")
		} else {
			log.WithField("kind", kind).Info("order placement rejected")
		}
		return nil, err
	}

	observability.OrdersPlaced.Inc()
	observability.TicketsSold.Add(float64(len(order.Tickets)))
	span.SetAttributes(attribute.String("order_id", order.ID.String()))
	log.WithField("order_id", order.ID).Info("order placed")
	return order, nil
}

func (s *service) placeOrder(ctx context.Context, principalID string, req domain.PlaceOrderRequest) (*domain.Order, error) {
	if principalID == "" {
		return nil, errors.Wrap(domain.ErrUnauthorized, "no authenticated principal")
	}
	if principalID != req.BuyerID {
		return nil, errors.Wrap(domain.ErrUnauthorized, "buyer does not match authenticated principal")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var order *domain.Order
	op := func() error {
		o, err := s.attempt(ctx, req)
		if err == nil {
			order = o
			return nil
		}
		if errors.Is(err, domain.ErrSerializationFailure) {
			observability.OrderRetries.Inc()
			return err
		}
		return backoff.Permanent(err)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxAttempts-1)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}

	if req.TotalAmount != nil && !req.TotalAmount.Equal(order.TotalAmount) {
		observability.ClientTotalMismatch.Inc()
		observability.LoggerFromContext(ctx, s.logger).
			WithField("order_id", order.ID).
			WithField("client_total", req.TotalAmount.String()).
			WithField("computed_total", order.TotalAmount.String()).
			Warn("client supplied total differs from computed total")
	}
	return order, nil
}

// attempt runs the precondition checks against a fresh read and then the
// atomic unit. A retry always starts over from here.
func (s *service) attempt(ctx context.Context, req domain.PlaceOrderRequest) (*domain.Order, error) {
	tt, err := s.repo.GetTicketType(ctx, req.TicketTypeID)
	if err != nil {
		return nil, errors.Wrapf(err, "ticket type %s", req.TicketTypeID)
	}
	if err := checkAvailability(tt, req); err != nil {
		return nil, err
	}

	var order domain.Order
	err = s.repo.WithTx(ctx, func(tx domain.Tx) error {
		locked, err := tx.LockTicketType(ctx, req.TicketTypeID)
		if err != nil {
			return errors.Wrapf(err, "ticket type %s", req.TicketTypeID)
		}
		if err := checkAvailability(locked, req); err != nil {
			return err
		}

		order = domain.NewOrder(req, *locked, s.now())
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.CreateTickets(ctx, order.Tickets); err != nil {
			return err
		}
		remaining, err := tx.Reserve(ctx, locked.ID, req.Quantity)
		if err != nil {
			return err
		}

		rec, err := domain.NewOutboxRecord("order", order.ID, domain.EventTypeOrderPlaced, domain.OrderPlacedPayload{
			OrderID:      order.ID,
			EventID:      order.EventID,
			TicketTypeID: locked.ID,
			BuyerID:      order.BuyerID,
			Quantity:     req.Quantity,
			TotalAmount:  order.TotalAmount,
			Remaining:    remaining,
			PlacedAt:     order.CreatedAt,
		})
		if err != nil {
			return errors.Wrap(err, "build outbox record")
		}
		if err := tx.InsertOutbox(ctx, rec); err != nil {
			return err
		}

		sold := *locked
		sold.RemainingQuantity = remaining
		for i := range order.Tickets {
			order.Tickets[i].TicketType = &sold
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func checkAvailability(tt *domain.TicketType, req domain.PlaceOrderRequest) error {
	if tt.EventID != req.EventID {
		return errors.Wrapf(domain.ErrNotFound, "ticket type %s does not belong to event %s", tt.ID, req.EventID)
	}
	if req.Quantity > tt.RemainingQuantity {
		return errors.Wrapf(domain.ErrInsufficientInventory, "requested %d, %d remaining", req.Quantity, tt.RemainingQuantity)
	}
	return domain.CheckOrderTotal(domain.OrderTotal(tt.Price, req.Quantity))
}

func (s *service) ListOrders(ctx context.Context, principalID string, eventID *uuid.UUID) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "ordering.ListOrders")
	defer span.End()

	if principalID == "" {
		return nil, errors.Wrap(domain.ErrUnauthorized, "no authenticated principal")
	}
	orders, err := s.repo.ListOrders(ctx, domain.OrderFilter{BuyerID: principalID, EventID: eventID})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "list orders")
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

// GetOrder hides orders of other buyers behind ErrNotFound.
func (s *service) GetOrder(ctx context.Context, principalID string, orderID uuid.UUID) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "ordering.GetOrder")
	defer span.End()

	if principalID == "" {
		return nil, errors.Wrap(domain.ErrUnauthorized, "no authenticated principal")
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "order %s", orderID)
	}
	if order.BuyerID != principalID {
		return nil, errors.Wrapf(domain.ErrNotFound, "order %s", orderID)
	}
	return order, nil
}
