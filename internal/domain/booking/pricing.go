package booking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/trip-checkout/internal/domain/provider"
)

// Fixed platform rates.
var (
	TaxRate          = decimal.RequireFromString("0.12")
	CommissionRate   = decimal.RequireFromString("0.10")
	FlightRefundRate = decimal.RequireFromString("0.90")
)

// Totals is the priced cart.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Quote prices a cart: subtotal of item prices, 12% tax on top.
func Quote(items []CartItem) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Price())
	}
	tax := subtotal.Mul(TaxRate).Round(2)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// Split divides an item price into the provider's business value and the
// platform commission. The two always add up to price.
func Split(price decimal.Decimal) (businessValue, commission decimal.Decimal) {
	commission = price.Mul(CommissionRate).Round(2)
	return price.Sub(commission), commission
}

// RefundCeiling is the most that cancelling a reservation of this category
// and price can return to the customer.
func RefundCeiling(c provider.Category, price decimal.Decimal) decimal.Decimal {
	if c == provider.CategoryFlight {
		return price.Mul(FlightRefundRate).Round(2)
	}
	return price
}

// Days counts whole calendar days between start and end, minimum 1.
func Days(start, end time.Time) int {
	if start.IsZero() || end.IsZero() {
		return 1
	}
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	d := int(e.Sub(s).Hours() / 24)
	if d < 1 {
		return 1
	}
	return d
}
