package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xenking/trip-checkout/internal/domain/provider"
)

func TestDays(t *testing.T) {
	day := time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{name: "same day", start: day, end: day.Add(2 * time.Hour), want: 1},
		{name: "overnight", start: day, end: day.Add(10 * time.Hour), want: 1},
		{name: "three nights", start: day, end: day.AddDate(0, 0, 3), want: 3},
		{name: "no end", start: day, want: 1},
		{name: "reversed", start: day.AddDate(0, 0, 2), end: day, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Days(tt.start, tt.end))
		})
	}
}

func TestCartItemPrice(t *testing.T) {
	start := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		item CartItem
		want string
	}{
		{
			name: "hotel billed per night",
			item: CartItem{Category: provider.CategoryHotel, Start: start, End: start.AddDate(0, 0, 3), Quantity: 1, UnitPrice: dec("80")},
			want: "240",
		},
		{
			name: "car same day bills one day",
			item: CartItem{Category: provider.CategoryCarRental, Start: start, End: start, Quantity: 1, UnitPrice: dec("45.50")},
			want: "45.50",
		},
		{
			name: "two rooms two nights",
			item: CartItem{Category: provider.CategoryHotel, Start: start, End: start.AddDate(0, 0, 2), Quantity: 2, UnitPrice: dec("100")},
			want: "400",
		},
		{
			name: "flight by passengers",
			item: CartItem{Category: provider.CategoryFlight, Start: start, End: start.AddDate(0, 0, 7), Quantity: 3, UnitPrice: dec("120")},
			want: "360",
		},
		{
			name: "zero quantity counts one",
			item: CartItem{Category: provider.CategoryPackage, Start: start, UnitPrice: dec("99.99")},
			want: "99.99",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.item.Price()
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestQuote(t *testing.T) {
	start := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	q := Quote([]CartItem{
		{Category: provider.CategoryHotel, Start: start, End: start.AddDate(0, 0, 1), Quantity: 1, UnitPrice: dec("100")},
		{Category: provider.CategoryFlight, Start: start, Quantity: 1, UnitPrice: dec("200")},
	})
	assert.True(t, q.Subtotal.Equal(dec("300")))
	assert.True(t, q.Tax.Equal(dec("36")))
	assert.True(t, q.Total.Equal(dec("336")))
}

func TestSplit(t *testing.T) {
	tests := []struct {
		price, value, commission string
	}{
		{"100", "90", "10"},
		{"220", "198", "22"},
		{"45.55", "40.99", "4.56"},
		{"0.01", "0.01", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			value, commission := Split(dec(tt.price))
			assert.True(t, value.Equal(dec(tt.value)), "value %s", value)
			assert.True(t, commission.Equal(dec(tt.commission)), "commission %s", commission)
			assert.True(t, value.Add(commission).Equal(dec(tt.price)))
		})
	}
}

func TestRefundCeiling(t *testing.T) {
	assert.True(t, RefundCeiling(provider.CategoryFlight, dec("220")).Equal(dec("198")))
	for _, c := range []provider.Category{
		provider.CategoryHotel,
		provider.CategoryCarRental,
		provider.CategoryRestaurant,
		provider.CategoryPackage,
	} {
		assert.True(t, RefundCeiling(c, dec("220")).Equal(dec("220")), c)
	}
}

func TestHoldEligible(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	later, earlier := now.Add(time.Minute), now.Add(-time.Minute)

	tests := []struct {
		name string
		hold *Hold
		want bool
	}{
		{name: "missing", hold: nil, want: false},
		{name: "empty id", hold: &Hold{}, want: false},
		{name: "no expiry", hold: &Hold{ID: "h"}, want: true},
		{name: "not expired", hold: &Hold{ID: "h", ExpiresAt: &later}, want: true},
		{name: "expired", hold: &Hold{ID: "h", ExpiresAt: &earlier}, want: false},
		{name: "expires now", hold: &Hold{ID: "h", ExpiresAt: &now}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.hold.Eligible(now))
		})
	}
}

func TestClassify(t *testing.T) {
	booked := ItemResult{State: StateBooked}
	failed := ItemResult{State: StateFailed}

	assert.Equal(t, AllBooked, Classify([]ItemResult{booked, booked}))
	assert.Equal(t, PartiallyBooked, Classify([]ItemResult{failed, booked}))
	assert.Equal(t, NoneBooked, Classify([]ItemResult{failed, failed}))
}
