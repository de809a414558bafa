package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/trip-checkout/internal/cart"
	"github.com/xenking/trip-checkout/internal/domain/booking"
)

// Money is written as a JSON number with two fractional digits.
func money(e *jx.Encoder, name string, d decimal.Decimal) {
	e.FieldStart(name)
	e.Raw([]byte(d.StringFixed(2)))
}

func str(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func optStr(e *jx.Encoder, name, v string) {
	if v != "" {
		str(e, name, v)
	}
}

func optID(e *jx.Encoder, name string, id uuid.UUID) {
	if id != uuid.Nil {
		str(e, name, id.String())
	}
}

func stamp(e *jx.Encoder, name string, t time.Time) {
	str(e, name, t.UTC().Format(time.RFC3339))
}

func encodeCheckout(res *booking.CheckoutResult) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(res.Success)
	str(&e, "outcome", string(res.Outcome))
	str(&e, "message", res.Message)
	str(&e, "purchaseId", res.PurchaseID.String())
	money(&e, "totalPaid", res.TotalPaid)
	money(&e, "refunded", res.Refunded)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range res.Items {
		e.ObjStart()
		str(&e, "category", string(it.Category))
		str(&e, "title", it.Title)
		str(&e, "providerId", it.ProviderID)
		e.FieldStart("success")
		e.Bool(it.Success())
		str(&e, "state", string(it.State))
		optStr(&e, "protocol", string(it.Protocol))
		optID(&e, "reservationId", it.ReservationID)
		optStr(&e, "reservationCode", it.ReservationCode)
		optStr(&e, "invoiceUrl", it.InvoiceURL)
		money(&e, "price", it.Price)
		if it.Refunded.IsPositive() {
			money(&e, "refunded", it.Refunded)
		}
		optStr(&e, "error", it.Error)
		optStr(&e, "warning", it.Warning)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeItem(e *jx.Encoder, it booking.CartItem) {
	e.ObjStart()
	str(e, "category", string(it.Category))
	str(e, "providerId", it.ProviderID)
	str(e, "productId", it.ProductID)
	str(e, "title", it.Title)
	stamp(e, "start", it.Start)
	if !it.End.IsZero() {
		stamp(e, "end", it.End)
	}
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	money(e, "unitPrice", it.UnitPrice)
	money(e, "price", it.Price())
	if it.Hold != nil {
		e.FieldStart("hold")
		e.ObjStart()
		str(e, "id", it.Hold.ID)
		str(e, "protocol", string(it.Hold.Protocol))
		if it.Hold.ExpiresAt != nil {
			stamp(e, "expiresAt", *it.Hold.ExpiresAt)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeHolds(results []booking.HoldResult) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, r := range results {
		e.ObjStart()
		e.FieldStart("item")
		encodeItem(&e, r.Item)
		e.FieldStart("held")
		e.Bool(r.Item.Hold != nil)
		optStr(&e, "error", r.Error)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func encodeCart(c *cart.Cart) []byte {
	var e jx.Encoder
	e.ObjStart()
	str(&e, "customerId", c.CustomerID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range c.Items {
		encodeItem(&e, it)
	}
	e.ArrEnd()
	quote := booking.Quote(c.Items)
	money(&e, "subtotal", quote.Subtotal)
	money(&e, "tax", quote.Tax)
	money(&e, "total", quote.Total)
	if !c.UpdatedAt.IsZero() {
		stamp(&e, "updatedAt", c.UpdatedAt)
	}
	e.ObjEnd()
	return e.Bytes()
}

func encodeCancel(res *booking.CancelResult) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(res.Success)
	str(&e, "message", res.Message)
	money(&e, "amountRefunded", res.AmountRefunded)
	e.ObjEnd()
	return e.Bytes()
}

func encodeReservations(list []booking.Reservation) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("reservations")
	e.ArrStart()
	for _, r := range list {
		e.ObjStart()
		str(&e, "id", r.ID.String())
		str(&e, "purchaseId", r.PurchaseID.String())
		str(&e, "providerId", r.ProviderID)
		str(&e, "category", string(r.Category))
		str(&e, "title", r.Title)
		str(&e, "reservationCode", r.Code)
		optStr(&e, "invoiceUrl", r.InvoiceURL)
		money(&e, "price", r.Price())
		money(&e, "businessValue", r.BusinessValue)
		money(&e, "commission", r.Commission)
		str(&e, "protocol", string(r.Protocol))
		e.FieldStart("active")
		e.Bool(r.Active)
		stamp(&e, "createdAt", r.CreatedAt)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
	return e.Bytes()
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
