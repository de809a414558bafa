package booking

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/trip-checkout/internal/connector"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

// Cancel cancels one reservation with its provider and refunds the customer.
//
// Lookup, ownership and capability problems are returned as errors. A
// provider that fails or refuses yields Success=false and leaves the
// reservation untouched.
func (o *Orchestrator) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	ctx, span := o.tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(
		attribute.String("reservation_id", req.ReservationID.String()),
		attribute.String("customer_id", req.CustomerID),
	))
	defer span.End()
	ctx = zctx.With(ctx,
		zap.String("reservation_id", req.ReservationID.String()),
		zap.String("customer_id", req.CustomerID),
	)
	lg := zctx.From(ctx)

	r, err := o.ledger.GetReservation(ctx, req.ReservationID)
	if err != nil {
		return nil, err
	}
	owned, err := o.ledger.OwnedBy(ctx, r.ID, req.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "check ownership")
	}
	if !owned {
		return nil, ErrNotAuthorized
	}
	if !r.Active {
		return nil, ErrAlreadyCancelled
	}

	p, err := o.directory.Resolve(ctx, r.ProviderID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve provider")
	}
	if _, ok := p.CancelEndpoint(); !ok {
		return nil, errors.Wrapf(ErrCancellationUnsupported, "provider %s has no rest cancel path", p.ID)
	}
	conn, err := connector.For(p.Category)
	if err != nil {
		return nil, err
	}
	caller, err := o.gateway.On(p, provider.ProtocolREST)
	if err != nil {
		return nil, errors.Wrap(ErrCancellationUnsupported, err.Error())
	}

	refund, err := conn.CancelReservation(ctx, caller, r.Code)
	if err != nil {
		span.RecordError(err)
		lg.Warn("Provider cancellation failed", zap.Error(err))
		return &CancelResult{Message: "Provider could not cancel the reservation: " + err.Error()}, nil
	}
	if !refund.Success {
		msg := refund.Message
		if msg == "" {
			msg = "cancellation refused by provider"
		}
		lg.Warn("Provider refused cancellation", zap.String("reason", msg))
		return &CancelResult{Message: msg}, nil
	}

	// Providers do not always report a usable amount: zero or less means
	// the ceiling, anything above it is capped.
	ceiling := RefundCeiling(p.Category, r.Price())
	amount := refund.Amount
	if !amount.IsPositive() || amount.GreaterThan(ceiling) {
		amount = ceiling
	}

	// The provider has cancelled: finish the bookkeeping even if the caller
	// goes away. The reservation is closed before any money moves so a retry
	// cannot refund twice.
	ctx = context.WithoutCancel(ctx)
	if err := o.ledger.Deactivate(ctx, r.ID); err != nil {
		span.SetStatus(codes.Error, "deactivate failed")
		lg.Error("Cancelled reservation still active in ledger", zap.Error(err))
		return nil, errors.Wrap(err, "deactivate reservation")
	}

	moved := o.refund(ctx, req.RefundAccount, amount, "cancellation")

	res := &CancelResult{
		Success:        true,
		Message:        "Reservation cancelled",
		AmountRefunded: moved,
	}
	if amount.IsPositive() && !moved.Equal(amount) {
		res.Success = false
		res.Message = "Reservation cancelled but the refund transfer failed"
	}
	lg.Info("Reservation cancelled",
		zap.String("refunded", moved.StringFixed(2)),
		zap.String("ceiling", ceiling.StringFixed(2)),
	)

	o.publish(ctx, Event{
		Type:          EventReservationCancelled,
		CustomerID:    req.CustomerID,
		PurchaseID:    r.PurchaseID,
		ReservationID: r.ID,
		Amount:        moved,
		OccurredAt:    o.now(),
	})
	return res, nil
}

// Reservations lists the customer's reservations, newest first.
func (o *Orchestrator) Reservations(ctx context.Context, customerID string) ([]Reservation, error) {
	if _, err := o.resolveCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	list, err := o.ledger.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "list reservations")
	}
	return list, nil
}
