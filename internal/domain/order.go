package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PlaceOrderRequest struct {
	EventID      uuid.UUID `json:"event_id" validate:"required"`
	TicketTypeID uuid.UUID `json:"ticket_type_id" validate:"required"`
	Quantity     int       `json:"quantity" validate:"min=1,max=100"`
	BuyerID      string    `json:"buyer_id" validate:"required"`
	BuyerName    string    `json:"buyer_name" validate:"required"`
	BuyerEmail   string    `json:"buyer_email" validate:"required,email"`
	BuyerPhone   string    `json:"buyer_phone" validate:"required"`
	// TotalAmount is what the client displayed. The stored total is always
	// recomputed from the unit price.
	TotalAmount *decimal.Decimal `json:"total_amount,omitempty"`
}

func (r PlaceOrderRequest) Validate() error {
	if err := Validate(r); err != nil {
		return err
	}
	if r.TotalAmount != nil && r.TotalAmount.IsNegative() {
		return NewValidationError("total_amount", "total_amount must be greater than or equal to 0")
	}
	return nil
}

// MaxAmount is the largest price or order total storage can hold.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// CheckOrderTotal rejects a recomputed total that storage cannot hold.
func CheckOrderTotal(total decimal.Decimal) error {
	if total.GreaterThan(MaxAmount) {
		return NewValidationError("quantity", "order total must be at most "+MaxAmount.StringFixed(2))
	}
	return nil
}

// OrderTotal is quantity times the unit price, rounded to cents.
func OrderTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// NewOrder builds a confirmed order and one ticket per purchased unit.
func NewOrder(req PlaceOrderRequest, tt TicketType, now time.Time) Order {
	order := Order{
		ID:          uuid.New(),
		EventID:     req.EventID,
		BuyerID:     req.BuyerID,
		BuyerName:   req.BuyerName,
		BuyerEmail:  req.BuyerEmail,
		BuyerPhone:  req.BuyerPhone,
		TotalAmount: OrderTotal(tt.Price, req.Quantity),
		Status:      OrderStatusConfirmed,
		CreatedAt:   now.UTC(),
		Tickets:     make([]Ticket, req.Quantity),
	}
	for i := range order.Tickets {
		order.Tickets[i] = Ticket{
			ID:           uuid.New(),
			OrderID:      order.ID,
			TicketTypeID: tt.ID,
		}
	}
	return order
}
