// Package customer holds the buyer identity consumed by the booking saga.
package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer is a registered buyer.
type Customer struct {
	ID         string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	DocumentID string
}

// FullName returns the customer's legal name.
func (c *Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// Repository provides read access to customers.
type Repository interface {
	Get(ctx context.Context, id string) (*Customer, error)
}
