package domain_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEventRequest() domain.CreateEventRequest {
	return domain.CreateEventRequest{
		OrganizerID: "org-1",
		Name:        "Jazz Night",
		Description: "Live quartet",
		Location:    "Blue Hall",
		StartsAt:    time.Date(2026, 12, 1, 20, 0, 0, 0, time.UTC),
		TicketTypes: []domain.TicketTypeRequest{
			{Name: "General", Price: decimal.RequireFromString("25.00"), Quantity: 100},
			{Name: "VIP", Price: decimal.RequireFromString("80.00"), Quantity: 10},
		},
	}
}

func validOrderRequest() domain.PlaceOrderRequest {
	return domain.PlaceOrderRequest{
		EventID:      uuid.New(),
		TicketTypeID: uuid.New(),
		Quantity:     2,
		BuyerID:      "buyer-1",
		BuyerName:    "Ada",
		BuyerEmail:   "ada@example.com",
		BuyerPhone:   "+15550100",
	}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	return verr.Fields
}

func TestCreateEventRequest_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validEventRequest().Validate())
	})

	t.Run("free tier is allowed", func(t *testing.T) {
		req := validEventRequest()
		req.TicketTypes[0].Price = decimal.Zero
		assert.NoError(t, req.Validate())
	})

	t.Run("no tiers", func(t *testing.T) {
		req := validEventRequest()
		req.TicketTypes = nil
		fields := fieldsOf(t, req.Validate())
		assert.Contains(t, fields, "ticket_types")
	})

	t.Run("missing name and zero quantity", func(t *testing.T) {
		req := validEventRequest()
		req.Name = ""
		req.TicketTypes[1].Quantity = 0
		fields := fieldsOf(t, req.Validate())
		assert.Contains(t, fields, "name")
		assert.Contains(t, fields, "ticket_types[1].quantity")
	})

	t.Run("missing date", func(t *testing.T) {
		req := validEventRequest()
		req.StartsAt = time.Time{}
		fields := fieldsOf(t, req.Validate())
		assert.Contains(t, fields, "starts_at")
	})

	t.Run("negative price", func(t *testing.T) {
		req := validEventRequest()
		req.TicketTypes[0].Price = decimal.RequireFromString("-1")
		fields := fieldsOf(t, req.Validate())
		assert.Contains(t, fields, "ticket_types[0].price")
	})

	t.Run("price beyond storable range", func(t *testing.T) {
		req := validEventRequest()
		req.TicketTypes[0].Price = decimal.RequireFromString("10000000000")
		fields := fieldsOf(t, req.Validate())
		assert.Equal(t, "price must be at most 9999999999.99", fields["ticket_types[0].price"])
	})

	t.Run("price rounding up past the limit", func(t *testing.T) {
		req := validEventRequest()
		req.TicketTypes[0].Price = decimal.RequireFromString("9999999999.995")
		assert.Contains(t, fieldsOf(t, req.Validate()), "ticket_types[0].price")
	})

	t.Run("largest storable price", func(t *testing.T) {
		req := validEventRequest()
		req.TicketTypes[0].Price = domain.MaxAmount
		assert.NoError(t, req.Validate())
	})

	t.Run("tier quantity too large", func(t *testing.T) {
		req := validEventRequest()
		req.TicketTypes[0].Quantity = 1000000000
		fields := fieldsOf(t, req.Validate())
		assert.Equal(t, "ticket_types[0].quantity must be at most 100000", fields["ticket_types[0].quantity"])
	})
}

func TestPlaceOrderRequest_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validOrderRequest().Validate())
	})

	t.Run("zero quantity", func(t *testing.T) {
		req := validOrderRequest()
		req.Quantity = 0
		assert.Contains(t, fieldsOf(t, req.Validate()), "quantity")
	})

	t.Run("quantity too large", func(t *testing.T) {
		req := validOrderRequest()
		req.Quantity = 101
		assert.Equal(t, "quantity must be at most 100", fieldsOf(t, req.Validate())["quantity"])
	})

	t.Run("bad email", func(t *testing.T) {
		req := validOrderRequest()
		req.BuyerEmail = "not-an-email"
		assert.Equal(t, "buyer_email must be a valid email address", fieldsOf(t, req.Validate())["buyer_email"])
	})

	t.Run("missing phone and ticket type", func(t *testing.T) {
		req := validOrderRequest()
		req.BuyerPhone = ""
		req.TicketTypeID = uuid.Nil
		fields := fieldsOf(t, req.Validate())
		assert.Contains(t, fields, "buyer_phone")
		assert.Contains(t, fields, "ticket_type_id")
	})

	t.Run("negative client total", func(t *testing.T) {
		req := validOrderRequest()
		total := decimal.RequireFromString("-5")
		req.TotalAmount = &total
		assert.Contains(t, fieldsOf(t, req.Validate()), "total_amount")
	})
}

func TestCheckOrderTotal(t *testing.T) {
	assert.NoError(t, domain.CheckOrderTotal(domain.MaxAmount))

	total := domain.OrderTotal(domain.MaxAmount, 2)
	err := domain.CheckOrderTotal(total)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Contains(t, fieldsOf(t, err), "quantity")
}

func TestOrderTotal(t *testing.T) {
	assert.True(t, domain.OrderTotal(decimal.RequireFromString("25.00"), 2).Equal(decimal.RequireFromString("50.00")))
	assert.True(t, domain.OrderTotal(decimal.RequireFromString("0.10"), 3).Equal(decimal.RequireFromString("0.30")))
	assert.True(t, domain.OrderTotal(decimal.Zero, 4).IsZero())
}

func TestNewEvent(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	ev := domain.NewEvent(validEventRequest(), now)

	assert.NotEqual(t, uuid.Nil, ev.ID)
	assert.Equal(t, now, ev.CreatedAt)
	require.Len(t, ev.TicketTypes, 2)
	for _, tt := range ev.TicketTypes {
		assert.Equal(t, ev.ID, tt.EventID)
		assert.Equal(t, tt.TotalQuantity, tt.RemainingQuantity)
	}
	assert.Equal(t, "VIP", ev.TicketTypes[1].Name)
}

func TestNewOrder(t *testing.T) {
	tt := domain.TicketType{ID: uuid.New(), Price: decimal.RequireFromString("25.00")}
	req := validOrderRequest()
	req.Quantity = 3

	order := domain.NewOrder(req, tt, time.Now())

	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("75.00")))
	require.Len(t, order.Tickets, 3)
	seen := map[uuid.UUID]bool{}
	for _, tk := range order.Tickets {
		assert.Equal(t, order.ID, tk.OrderID)
		assert.Equal(t, tt.ID, tk.TicketTypeID)
		assert.False(t, seen[tk.ID], "ticket ids must be unique")
		seen[tk.ID] = true
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want domain.Kind
	}{
		{errors.Wrap(domain.ErrUnauthorized, "x"), domain.KindUnauthorized},
		{domain.NewValidationError("f", "bad"), domain.KindValidation},
		{errors.Wrapf(domain.ErrNotFound, "order %d", 1), domain.KindNotFound},
		{errors.Wrap(domain.ErrInsufficientInventory, "x"), domain.KindInsufficientInventory},
		{errors.Mark(errors.New("restart transaction"), domain.ErrSerializationFailure), domain.KindTransient},
		{errors.New("boom"), domain.KindInternal},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, domain.KindOf(tc.err), tc.err.Error())
	}
}

func TestNewOutboxRecord(t *testing.T) {
	id := uuid.New()
	rec, err := domain.NewOutboxRecord("order", id, domain.EventTypeOrderPlaced, domain.OrderPlacedPayload{OrderID: id, Quantity: 2})
	require.NoError(t, err)

	assert.Equal(t, "NEW", rec.Status)
	assert.Equal(t, id, rec.AggregateID)
	assert.NotEmpty(t, rec.DedupeKey)
	assert.Contains(t, string(rec.Payload), `"quantity":2`)
}
