// Package booking implements the checkout saga and the cancellation pipeline
// over independent travel providers.
package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/trip-checkout/internal/domain/provider"
)

// Hold is a provider-side inventory lock attached to a cart item.
type Hold struct {
	ID        string            `json:"id"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Protocol  provider.Protocol `json:"protocol"`
}

// Eligible reports whether the hold can still be converted into a booking:
// it must exist and either carry no expiry or not have expired yet.
func (h *Hold) Eligible(now time.Time) bool {
	if h == nil || h.ID == "" {
		return false
	}
	return h.ExpiresAt == nil || now.Before(*h.ExpiresAt)
}

// CartItem is one line of a customer's cart. It is transient until checkout.
type CartItem struct {
	Category   provider.Category `json:"category"`
	ProviderID string            `json:"provider_id"`
	ProductID  string            `json:"product_id"`
	Title      string            `json:"title"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end,omitzero"`
	Quantity   int               `json:"quantity"`
	UnitPrice  decimal.Decimal   `json:"unit_price"`
	Hold       *Hold             `json:"hold,omitempty"`
}

// Units is the billable multiplier of the unit price: the quantity, times the
// whole-day count for categories billed by day.
func (i CartItem) Units() int64 {
	q := int64(i.Quantity)
	if q < 1 {
		q = 1
	}
	if i.Category.BilledByDay() {
		q *= int64(Days(i.Start, i.End))
	}
	return q
}

// Price is the final price of the line item before tax.
func (i CartItem) Price() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Units())).Round(2)
}

// ItemState is the position of a line item in the checkout state machine.
type ItemState string

const (
	StatePending              ItemState = "pending"
	StateHoldAttempted        ItemState = "hold_attempted"
	StateHeld                 ItemState = "held"
	StateReservationAttempted ItemState = "reservation_attempted"
	StateBooked               ItemState = "booked"
	StateFailed               ItemState = "failed"
)

// Outcome is the terminal state of a checkout.
type Outcome string

const (
	AllBooked       Outcome = "all_booked"
	PartiallyBooked Outcome = "partially_booked"
	NoneBooked      Outcome = "none_booked"
)

// Classify derives the checkout outcome from per-item terminal states.
func Classify(items []ItemResult) Outcome {
	booked := 0
	for _, it := range items {
		if it.State == StateBooked {
			booked++
		}
	}
	switch {
	case booked == 0:
		return NoneBooked
	case booked == len(items):
		return AllBooked
	default:
		return PartiallyBooked
	}
}

// Purchase is created exactly once per checkout whose debit succeeded.
type Purchase struct {
	ID         uuid.UUID
	CustomerID string
	CreatedAt  time.Time
	Total      decimal.Decimal
}

// Reservation is a firm booking produced by one line item.
type Reservation struct {
	ID            uuid.UUID
	PurchaseID    uuid.UUID
	ProviderID    string
	Category      provider.Category
	Title         string
	Code          string
	InvoiceURL    string
	BusinessValue decimal.Decimal
	Commission    decimal.Decimal
	Protocol      provider.Protocol
	Active        bool
	CreatedAt     time.Time
}

// Price is the amount the customer paid for the reservation before tax.
func (r *Reservation) Price() decimal.Decimal {
	return r.BusinessValue.Add(r.Commission)
}

// Billing is the invoice addressee supplied at checkout.
type Billing struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	TaxID   string `json:"tax_id"`
}

// CheckoutRequest is the input of a checkout.
type CheckoutRequest struct {
	CustomerID      string
	CustomerAccount string
	Items           []CartItem
	Billing         Billing
}

// ItemResult is the per-item breakdown of a checkout.
type ItemResult struct {
	Index           int
	Category        provider.Category
	Title           string
	ProviderID      string
	State           ItemState
	Protocol        provider.Protocol
	ReservationID   uuid.UUID
	ReservationCode string
	InvoiceURL      string
	Price           decimal.Decimal
	Refunded        decimal.Decimal
	Error           string
	Warning         string
}

// Success reports whether the item was booked.
func (r ItemResult) Success() bool { return r.State == StateBooked }

// CheckoutResult is the output of a checkout whose debit succeeded.
type CheckoutResult struct {
	Success    bool
	Outcome    Outcome
	Message    string
	PurchaseID uuid.UUID
	TotalPaid  decimal.Decimal
	Refunded   decimal.Decimal
	Items      []ItemResult
}

// HoldResult is the outcome of preparing a hold for one item.
type HoldResult struct {
	Item  CartItem
	Error string
}

// CancelRequest is the input of a cancellation.
type CancelRequest struct {
	ReservationID uuid.UUID
	CustomerID    string
	RefundAccount string
}

// CancelResult is the output of a cancellation.
type CancelResult struct {
	Success        bool
	Message        string
	AmountRefunded decimal.Decimal
}

// EventType names a published booking event.
type EventType string

const (
	EventCheckoutCompleted    EventType = "checkout.completed"
	EventReservationCancelled EventType = "reservation.cancelled"
)

// Event is a notification about a finished saga.
type Event struct {
	Type          EventType
	CustomerID    string
	PurchaseID    uuid.UUID
	ReservationID uuid.UUID
	Outcome       Outcome
	Amount        decimal.Decimal
	OccurredAt    time.Time
}

// Funds moves money between accounts. A nil error means the amount moved.
type Funds interface {
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error
}

// Ledger persists purchases and reservations.
type Ledger interface {
	CreatePurchase(ctx context.Context, p *Purchase) error
	// RecordReservation stores the reservation and links it to its purchase atomically.
	RecordReservation(ctx context.Context, r *Reservation) error
	// GetReservation returns ErrReservationNotFound when absent.
	GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error)
	// OwnedBy reports whether the reservation is linked to a purchase of the customer.
	OwnedBy(ctx context.Context, reservationID uuid.UUID, customerID string) (bool, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	ListByCustomer(ctx context.Context, customerID string) ([]Reservation, error)
}

// Publisher delivers booking events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
