// Package provider models third-party inventory providers and the endpoint
// records used to reach them over REST or SOAP.
package provider

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a provider does not exist or is inactive.
	ErrNotFound = errors.New("service not found")
	// ErrUnknownCategory is returned for a category outside the supported set.
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownProtocol = errors.New("unknown protocol")
)

// Category is the kind of inventory a provider sells.
type Category string

const (
	CategoryFlight     Category = "flight"
	CategoryHotel      Category = "hotel"
	CategoryCarRental  Category = "car_rental"
	CategoryRestaurant Category = "restaurant"
	CategoryPackage    Category = "package"
)

// Categories lists every supported category.
var Categories = []Category{
	CategoryFlight,
	CategoryHotel,
	CategoryCarRental,
	CategoryRestaurant,
	CategoryPackage,
}

// ParseCategory converts a string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownCategory, "%q", s)
}

// BilledByDay reports whether items of this category are priced per whole day.
func (c Category) BilledByDay() bool {
	return c == CategoryHotel || c == CategoryCarRental
}

// Protocol is the wire protocol of an endpoint record.
type Protocol string

const (
	ProtocolREST Protocol = "rest"
	ProtocolSOAP Protocol = "soap"
)

// ParseProtocol converts a string into a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToLower(strings.TrimSpace(s))); p {
	case ProtocolREST, ProtocolSOAP:
		return p, nil
	}
	return "", errors.Wrapf(ErrUnknownProtocol, "%q", s)
}

// Preference is the order in which protocols are attempted.
var Preference = []Protocol{ProtocolREST, ProtocolSOAP}

// Operation names a provider capability.
type Operation string

const (
	OpRegisterCustomer  Operation = "register_customer"
	OpCheckAvailability Operation = "check_availability"
	OpCreateHold        Operation = "create_hold"
	OpCreateReservation Operation = "create_reservation"
	OpGenerateInvoice   Operation = "generate_invoice"
	OpCancelReservation Operation = "cancel_reservation"
)

// Endpoint is one protocol-specific way of reaching a provider: a base URI
// plus a path suffix per supported operation.
type Endpoint struct {
	Protocol Protocol
	BaseURI  string
	Paths    map[Operation]string
}

// Supports reports whether the endpoint declares a path for op.
func (e Endpoint) Supports(op Operation) bool {
	_, ok := e.Paths[op]
	return ok
}

// URL joins the base URI with the path suffix for op.
func (e Endpoint) URL(op Operation) string {
	base := strings.TrimRight(e.BaseURI, "/")
	path := e.Paths[op]
	if path == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// Provider is a third party selling one category of travel inventory.
type Provider struct {
	ID            string
	Name          string
	Category      Category
	PayoutAccount string
	Active        bool
	Endpoints     []Endpoint
}

// Endpoint returns the endpoint record for the given protocol, if any.
func (p *Provider) Endpoint(proto Protocol) (Endpoint, bool) {
	for _, e := range p.Endpoints {
		if e.Protocol == proto {
			return e, true
		}
	}
	return Endpoint{}, false
}

// Ordered returns the provider's endpoints in protocol preference order:
// REST first, SOAP as fallback.
func (p *Provider) Ordered() []Endpoint {
	out := make([]Endpoint, 0, len(p.Endpoints))
	for _, proto := range Preference {
		if e, ok := p.Endpoint(proto); ok {
			out = append(out, e)
		}
	}
	return out
}

// CancelEndpoint returns the REST endpoint when it declares a cancel path.
// SOAP endpoints never cancel.
func (p *Provider) CancelEndpoint() (Endpoint, bool) {
	e, ok := p.Endpoint(ProtocolREST)
	if !ok || !e.Supports(OpCancelReservation) {
		return Endpoint{}, false
	}
	return e, true
}

// Directory resolves providers with their endpoint records.
type Directory interface {
	// Resolve returns the active provider with the given id, or ErrNotFound.
	Resolve(ctx context.Context, id string) (*Provider, error)
}
