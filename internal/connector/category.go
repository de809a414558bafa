package connector

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/trip-checkout/internal/domain/customer"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

// base implements the operations whose shape is shared by every category.
// The category-specific product fields come from shape.
type base struct {
	category provider.Category
	shape    func(Item) Message
}

func (b *base) Category() provider.Category { return b.category }

func (b *base) RegisterCustomer(ctx context.Context, c Caller, cust *customer.Customer) (string, error) {
	reply, err := c.Call(ctx, provider.OpRegisterCustomer, guest(nil, cust))
	if err != nil {
		return "", err
	}
	if err := rejected(provider.OpRegisterCustomer, reply); err != nil {
		return "", err
	}
	return reply.String("customer_id", "customerId", "id"), nil
}

func (b *base) CheckAvailability(ctx context.Context, c Caller, item Item) (bool, error) {
	reply, err := c.Call(ctx, provider.OpCheckAvailability, b.shape(item))
	if err != nil {
		return false, err
	}
	return reply.Bool("available", "is_available"), nil
}

func (b *base) CreateHold(ctx context.Context, c Caller, item Item, d time.Duration) (Hold, error) {
	msg := b.shape(item).With("duration_seconds", int(d.Seconds()))
	reply, err := c.Call(ctx, provider.OpCreateHold, msg)
	if err != nil {
		return Hold{}, err
	}
	if err := rejected(provider.OpCreateHold, reply); err != nil {
		return Hold{}, err
	}

	h := Hold{
		ID:       reply.String("hold_id", "holdId", "id"),
		Protocol: c.Protocol(),
	}
	if h.ID == "" {
		return Hold{}, errors.Wrap(ErrRejected, "no hold id in reply")
	}
	if t, ok := reply.Time("expires_at", "expiresAt", "expiry"); ok {
		h.ExpiresAt = &t
	}
	return h, nil
}

func (b *base) CreateReservation(ctx context.Context, c Caller, item Item, holdID string, cust *customer.Customer) (Booking, error) {
	msg := guest(b.shape(item).With("hold_id", holdID), cust)
	reply, err := c.Call(ctx, provider.OpCreateReservation, msg)
	if err != nil {
		return Booking{}, err
	}
	if err := rejected(provider.OpCreateReservation, reply); err != nil {
		return Booking{}, err
	}

	bk := Booking{
		ReservationID: reply.String("reservation_id", "reservationId", "id"),
		Code:          reply.String("reservation_code", "reservationCode", "confirmation_code", "code"),
	}
	if bk.Code == "" {
		bk.Code = bk.ReservationID
	}
	if bk.Code == "" {
		return Booking{}, errors.Wrap(ErrRejected, "no reservation code in reply")
	}
	return bk, nil
}

func (b *base) GenerateInvoice(ctx context.Context, c Caller, inv Invoice) (string, error) {
	msg := Message{}.
		With("reservation_id", inv.ReservationID).
		With("subtotal", inv.Subtotal).
		With("tax", inv.Tax).
		With("total", inv.Total).
		With("billing_name", inv.Billing.Name).
		With("billing_email", inv.Billing.Email).
		With("billing_address", inv.Billing.Address).
		With("billing_tax_id", inv.Billing.TaxID)
	reply, err := c.Call(ctx, provider.OpGenerateInvoice, msg)
	if err != nil {
		return "", err
	}
	if err := rejected(provider.OpGenerateInvoice, reply); err != nil {
		return "", err
	}
	return reply.String("invoice_url", "invoiceUrl", "url"), nil
}

func (b *base) CancelReservation(ctx context.Context, c Caller, code string) (Refund, error) {
	if c.Protocol() != provider.ProtocolREST {
		return Refund{}, ErrCancelOverSOAP
	}
	reply, err := c.Call(ctx, provider.OpCancelReservation, Message{}.With("reservation_code", code))
	if err != nil {
		return Refund{}, err
	}
	amount, err := reply.Decimal("refunded_amount", "refundedAmount", "refund")
	if err != nil {
		return Refund{}, err
	}
	return Refund{
		Success: reply.Bool("success", "cancelled", "ok"),
		Amount:  amount,
		Message: reply.String("message", "reason"),
	}, nil
}

func guest(m Message, cust *customer.Customer) Message {
	return m.
		With("first_name", cust.FirstName).
		With("last_name", cust.LastName).
		With("email", cust.Email).
		With("phone", cust.Phone).
		With("document_id", cust.DocumentID)
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Flight books seats on a flight. Availability is answered either as a flag
// or as a remaining seat count compared against the passenger count.
type Flight struct{ base }

// NewFlight returns the flight connector.
func NewFlight() *Flight {
	return &Flight{base{
		category: provider.CategoryFlight,
		shape: func(it Item) Message {
			return Message{}.
				With("flight_id", it.ProductID).
				With("departure_date", date(it.Start)).
				With("passengers", atLeastOne(it.Quantity))
		},
	}}
}

// CheckAvailability overrides base to honour seat counts.
func (f *Flight) CheckAvailability(ctx context.Context, c Caller, item Item) (bool, error) {
	reply, err := c.Call(ctx, provider.OpCheckAvailability, f.shape(item))
	if err != nil {
		return false, err
	}
	if reply.Has("seats_available", "seatsAvailable") {
		seats, err := reply.Int("seats_available", "seatsAvailable")
		if err != nil {
			return false, err
		}
		return seats >= atLeastOne(item.Quantity), nil
	}
	return reply.Bool("available", "is_available"), nil
}

// Room books hotel rooms for a check-in/check-out range.
type Room struct{ base }

// NewRoom returns the hotel room connector.
func NewRoom() *Room {
	return &Room{base{
		category: provider.CategoryHotel,
		shape: func(it Item) Message {
			return Message{}.
				With("room_id", it.ProductID).
				With("check_in", date(it.Start)).
				With("check_out", date(it.End)).
				With("rooms", atLeastOne(it.Quantity))
		},
	}}
}

// Vehicle books rental cars for a pick-up/drop-off range.
type Vehicle struct{ base }

// NewVehicle returns the car rental connector.
func NewVehicle() *Vehicle {
	return &Vehicle{base{
		category: provider.CategoryCarRental,
		shape: func(it Item) Message {
			return Message{}.
				With("vehicle_id", it.ProductID).
				With("pickup_date", date(it.Start)).
				With("dropoff_date", date(it.End))
		},
	}}
}

// Table books restaurant tables for a date and party size.
type Table struct{ base }

// NewTable returns the restaurant table connector.
func NewTable() *Table {
	return &Table{base{
		category: provider.CategoryRestaurant,
		shape: func(it Item) Message {
			return Message{}.
				With("table_id", it.ProductID).
				With("date", date(it.Start)).
				With("time", it.Start.Format("15:04")).
				With("party_size", atLeastOne(it.Quantity))
		},
	}}
}

// Package books tour packages for a date and quantity.
type Package struct{ base }

// NewPackage returns the tour package connector.
func NewPackage() *Package {
	return &Package{base{
		category: provider.CategoryPackage,
		shape: func(it Item) Message {
			return Message{}.
				With("package_id", it.ProductID).
				With("date", date(it.Start)).
				With("quantity", atLeastOne(it.Quantity))
		},
	}}
}
