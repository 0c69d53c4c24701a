package catalog

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/robertarktes/ticket-marketplace/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Service interface {
	CreateEvent(ctx context.Context, principalID string, req domain.CreateEventRequest) (*domain.Event, error)
	ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error)
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error)
}

type service struct {
	repo   domain.Repository
	logger observability.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func NewService(repo domain.Repository, logger observability.Logger) Service {
	return &service{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("catalog"),
		now:    time.Now,
	}
}

func (s *service) CreateEvent(ctx context.Context, principalID string, req domain.CreateEventRequest) (*domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.CreateEvent")
	defer span.End()

	if principalID == "" {
		return nil, errors.Wrap(domain.ErrUnauthorized, "no authenticated principal")
	}
	if req.OrganizerID != principalID {
		return nil, errors.Wrap(domain.ErrUnauthorized, "organizer does not match authenticated principal")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ev := domain.NewEvent(req, s.now())
	capacity := 0
	for _, tt := range ev.TicketTypes {
		capacity += tt.TotalQuantity
	}

	err := s.repo.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.CreateEvent(ctx, ev); err != nil {
			return err
		}
		rec, err := domain.NewOutboxRecord("event", ev.ID, domain.EventTypeEventCreated, domain.EventCreatedPayload{
			EventID:     ev.ID,
			OrganizerID: ev.OrganizerID,
			Name:        ev.Name,
			StartsAt:    ev.StartsAt,
			TicketTypes: len(ev.TicketTypes),
			Capacity:    capacity,
		})
		if err != nil {
			return errors.Wrap(err, "build outbox record")
		}
		return tx.InsertOutbox(ctx, rec)
	})
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "create event")
	}

	span.SetAttributes(attribute.String("event_id", ev.ID.String()))
	observability.LoggerFromContext(ctx, s.logger).
		WithField("event_id", ev.ID).
		WithField("ticket_types", len(ev.TicketTypes)).
		Info("event created")
	return &ev, nil
}

func (s *service) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.ListEvents")
	defer span.End()

	if filter.UpcomingOnly && filter.Now.IsZero() {
		filter.Now = s.now()
	}
	events, err := s.repo.ListEvents(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "list events")
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}

func (s *service) GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.GetEvent")
	defer span.End()

	ev, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "event %s", id)
	}
	return ev, nil
}
