package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/trip-checkout/internal/domain/booking"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

var errBadRequest = errors.New("bad request")

type holdDTO struct {
	ID        string     `json:"id"`
	ExpiresAt *time.Time `json:"expiresAt"`
	Protocol  string     `json:"protocol"`
}

type itemDTO struct {
	Category   string          `json:"category"`
	ProviderID string          `json:"providerId"`
	ProductID  string          `json:"productId"`
	Title      string          `json:"title"`
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	Hold       *holdDTO        `json:"hold"`
}

type billingDTO struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	TaxID   string `json:"taxId"`
}

type checkoutDTO struct {
	CustomerID      string     `json:"customerId"`
	CustomerAccount string     `json:"customerAccount"`
	Items           []itemDTO  `json:"items"`
	Billing         billingDTO `json:"billing"`
}

type holdsDTO struct {
	CustomerID string    `json:"customerId"`
	Items      []itemDTO `json:"items"`
}

type cancelDTO struct {
	CustomerID    string `json:"customerId"`
	RefundAccount string `json:"refundAccount"`
}

type cartDTO struct {
	Items []itemDTO `json:"items"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return errors.Wrapf(errBadRequest, "decode body: %s", err)
	}
	return nil
}

func toItems(in []itemDTO) ([]booking.CartItem, error) {
	out := make([]booking.CartItem, len(in))
	for i, d := range in {
		c, err := provider.ParseCategory(d.Category)
		if err != nil {
			return nil, &booking.InvalidItemError{Index: i, Reason: err.Error(), Err: err}
		}
		it := booking.CartItem{
			Category:   c,
			ProviderID: d.ProviderID,
			ProductID:  d.ProductID,
			Title:      d.Title,
			Start:      d.Start,
			End:        d.End,
			Quantity:   d.Quantity,
			UnitPrice:  d.UnitPrice,
		}
		if d.Hold != nil && d.Hold.ID != "" {
			proto, err := provider.ParseProtocol(d.Hold.Protocol)
			if err != nil {
				return nil, &booking.InvalidItemError{Index: i, Reason: err.Error(), Err: err}
			}
			it.Hold = &booking.Hold{ID: d.Hold.ID, ExpiresAt: d.Hold.ExpiresAt, Protocol: proto}
		}
		out[i] = it
	}
	return out, nil
}

func (d billingDTO) toBilling() booking.Billing {
	return booking.Billing{Name: d.Name, Email: d.Email, Address: d.Address, TaxID: d.TaxID}
}
