// Package events delivers booking events to subscribers.
package events

import (
	"context"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/trip-checkout/internal/domain/booking"
)

// Encode renders an event as a JSON document.
func Encode(e booking.Event) []byte {
	enc := jx.GetEncoder()
	defer jx.PutEncoder(enc)

	enc.ObjStart()
	enc.FieldStart("event_type")
	enc.Str(string(e.Type))
	enc.FieldStart("customer_id")
	enc.Str(e.CustomerID)
	if e.PurchaseID != uuid.Nil {
		enc.FieldStart("purchase_id")
		enc.Str(e.PurchaseID.String())
	}
	if e.ReservationID != uuid.Nil {
		enc.FieldStart("reservation_id")
		enc.Str(e.ReservationID.String())
	}
	if e.Outcome != "" {
		enc.FieldStart("outcome")
		enc.Str(string(e.Outcome))
	}
	enc.FieldStart("amount")
	enc.Raw([]byte(e.Amount.StringFixed(2)))
	enc.FieldStart("occurred_at")
	enc.Str(e.OccurredAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	enc.ObjEnd()

	out := make([]byte, len(enc.Bytes()))
	copy(out, enc.Bytes())
	return out
}

// LogPublisher writes events to the logger. It is used when no topic is
// configured.
type LogPublisher struct {
	lg *zap.Logger
}

var _ booking.Publisher = (*LogPublisher)(nil)

// NewLogPublisher returns a LogPublisher.
func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

// Publish implements booking.Publisher.
func (p *LogPublisher) Publish(_ context.Context, e booking.Event) error {
	p.lg.Info("Booking event",
		zap.String("event_type", string(e.Type)),
		zap.ByteString("payload", Encode(e)),
	)
	return nil
}
