package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-marketplace/internal/auth"
	"github.com/robertarktes/ticket-marketplace/internal/catalog"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/robertarktes/ticket-marketplace/internal/observability"
	"github.com/robertarktes/ticket-marketplace/internal/ordering"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	catalog catalog.Service
	orders  ordering.Service
	db      Pinger
	logger  observability.Logger
}

func NewHandlers(catalog catalog.Service, orders ordering.Service, db Pinger, logger observability.Logger) *Handlers {
	return &Handlers{
		catalog: catalog,
		orders:  orders,
		db:      db,
		logger:  logger,
	}
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(r.Context(), w, h.logger, err)
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.WithSecondaryError(domain.NewValidationError("body", "must be a valid JSON document"), err)
	}
	return nil
}

// pathID parses the {id} route parameter. A malformed id cannot name an
// existing resource, so it is reported as not found.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errors.Wrapf(domain.ErrNotFound, "malformed id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	var req domain.CreateEventRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.OrganizerID == "" {
		req.OrganizerID = p.ID
	}

	ev, err := h.catalog.CreateEvent(r.Context(), p.ID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.EventFilter{OrganizerID: q.Get("organizerId")}
	if raw := q.Get("upcoming"); raw != "" {
		upcoming, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(w, r, domain.NewValidationError("upcoming", "must be a boolean"))
			return
		}
		filter.UpcomingOnly = upcoming
	}

	events, err := h.catalog.ListEvents(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ev, err := h.catalog.GetEvent(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	var req domain.PlaceOrderRequest
	if err := decodeBody(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	// Buyer details default to what the identity provider asserted.
	if req.BuyerID == "" {
		req.BuyerID = p.ID
	}
	if req.BuyerName == "" {
		req.BuyerName = p.Name
	}
	if req.BuyerEmail == "" {
		req.BuyerEmail = p.Email
	}

	order, err := h.orders.PlaceOrder(r.Context(), p.ID, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	var eventID *uuid.UUID
	if raw := r.URL.Query().Get("eventId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(w, r, domain.NewValidationError("eventId", "must be a valid id"))
			return
		}
		eventID = &id
	}

	orders, err := h.orders.ListOrders(r.Context(), p.ID, eventID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	id, err := pathID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.orders.GetOrder(r.Context(), p.ID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).WithError(err).Warn("readiness check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
