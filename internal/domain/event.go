package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateEventRequest struct {
	OrganizerID string              `json:"organizer_id" validate:"required"`
	Name        string              `json:"name" validate:"required"`
	Description string              `json:"description" validate:"required"`
	Location    string              `json:"location" validate:"required"`
	StartsAt    time.Time           `json:"starts_at" validate:"required"`
	TicketTypes []TicketTypeRequest `json:"ticket_types" validate:"required,min=1,dive"`
}

type TicketTypeRequest struct {
	Name     string          `json:"name" validate:"required"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"min=1,max=100000"`
}

func (r CreateEventRequest) Validate() error {
	if err := Validate(r); err != nil {
		return err
	}
	for i, tt := range r.TicketTypes {
		if tt.Price.IsNegative() {
			return NewValidationError(fmt.Sprintf("ticket_types[%d].price", i), "price must be greater than or equal to 0")
		}
		if tt.Price.Round(2).GreaterThan(MaxAmount) {
			return NewValidationError(fmt.Sprintf("ticket_types[%d].price", i), "price must be at most "+MaxAmount.StringFixed(2))
		}
	}
	return nil
}

// NewEvent builds an event and its tiers from a validated request. Every tier
// starts with its full quantity remaining.
func NewEvent(req CreateEventRequest, now time.Time) Event {
	ev := Event{
		ID:          uuid.New(),
		OrganizerID: req.OrganizerID,
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt.UTC(),
		CreatedAt:   now.UTC(),
		TicketTypes: make([]TicketType, len(req.TicketTypes)),
	}
	for i, tt := range req.TicketTypes {
		ev.TicketTypes[i] = TicketType{
			ID:                uuid.New(),
			EventID:           ev.ID,
			Name:              tt.Name,
			Price:             tt.Price.Round(2),
			TotalQuantity:     tt.Quantity,
			RemainingQuantity: tt.Quantity,
		}
	}
	return ev
}
