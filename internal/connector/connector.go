package connector

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/trip-checkout/internal/domain/customer"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

var (
	// ErrRejected is returned when a provider answers but declines the request.
	ErrRejected = errors.New("rejected by provider")
	// ErrCancelOverSOAP is returned when cancellation is attempted on a SOAP caller.
	ErrCancelOverSOAP = errors.New("cancellation is not available over soap")
)

// Item identifies the provider product a line item books.
type Item struct {
	ProductID string
	Start     time.Time
	End       time.Time
	Quantity  int
}

// Hold is a provider-side temporary lock on inventory.
type Hold struct {
	ID        string
	ExpiresAt *time.Time
	Protocol  provider.Protocol
}

// Booking is a firm provider reservation.
type Booking struct {
	ReservationID string
	Code          string
}

// Billing is the invoice addressee.
type Billing struct {
	Name    string
	Email   string
	Address string
	TaxID   string
}

// Invoice is the request for a provider-issued invoice.
type Invoice struct {
	ReservationID string
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	Billing       Billing
}

// Refund is the provider's answer to a cancellation.
type Refund struct {
	Success bool
	Amount  decimal.Decimal
	Message string
}

// Connector is the capability set every provider category implements.
type Connector interface {
	Category() provider.Category
	RegisterCustomer(ctx context.Context, c Caller, cust *customer.Customer) (string, error)
	CheckAvailability(ctx context.Context, c Caller, item Item) (bool, error)
	CreateHold(ctx context.Context, c Caller, item Item, d time.Duration) (Hold, error)
	CreateReservation(ctx context.Context, c Caller, item Item, holdID string, cust *customer.Customer) (Booking, error)
	GenerateInvoice(ctx context.Context, c Caller, inv Invoice) (string, error)
	CancelReservation(ctx context.Context, c Caller, code string) (Refund, error)
}

var connectors = map[provider.Category]Connector{
	provider.CategoryFlight:     NewFlight(),
	provider.CategoryHotel:      NewRoom(),
	provider.CategoryCarRental:  NewVehicle(),
	provider.CategoryRestaurant: NewTable(),
	provider.CategoryPackage:    NewPackage(),
}

// For returns the connector for a category.
func For(c provider.Category) (Connector, error) {
	conn, ok := connectors[c]
	if !ok {
		return nil, errors.Wrapf(provider.ErrUnknownCategory, "%q", c)
	}
	return conn, nil
}

// rejected converts an explicit negative answer into ErrRejected.
func rejected(op provider.Operation, r Reply) error {
	if r.Has("success", "ok") && !r.Bool("success", "ok") {
		msg := r.String("message", "error", "reason")
		if msg == "" {
			msg = string(op)
		}
		return errors.Wrap(ErrRejected, msg)
	}
	return nil
}
