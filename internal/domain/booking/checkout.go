package booking

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/trip-checkout/internal/connector"
	"github.com/xenking/trip-checkout/internal/domain/customer"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

// saga is the state shared by the per-item sub-pipelines of one checkout.
// It is read-only once the purchase exists.
type saga struct {
	purchase *Purchase
	customer *customer.Customer
	account  string
	billing  Billing
}

// Checkout debits the customer once, books every item independently and
// compensates with a full refund when nothing could be booked.
//
// Errors are returned only when no purchase was created. Once the debit
// succeeds, partial completion is reported through the result.
func (o *Orchestrator) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := o.tracer.Start(ctx, "booking.Checkout", trace.WithAttributes(
		attribute.String("customer_id", req.CustomerID),
		attribute.Int("items", len(req.Items)),
	))
	defer span.End()

	ctx = zctx.With(ctx, zap.String("customer_id", req.CustomerID))
	lg := zctx.From(ctx)

	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	cust, err := o.resolveCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	totals := Quote(req.Items)
	lg.Info("Checkout started",
		zap.Int("items", len(req.Items)),
		zap.String("subtotal", totals.Subtotal.StringFixed(2)),
		zap.String("total", totals.Total.StringFixed(2)),
	)

	if totals.Total.IsPositive() {
		if err := o.funds.Transfer(ctx, req.CustomerAccount, o.cfg.PlatformAccount, totals.Total); err != nil {
			o.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "debit_failed")))
			span.SetStatus(codes.Error, "debit failed")
			return nil, stepErr(ErrTransferFailed, err)
		}
	}
	// The customer is charged: the saga runs to completion even if the caller
	// goes away. Provider and funds calls keep their own timeouts.
	ctx = context.WithoutCancel(ctx)

	purchase := &Purchase{
		ID:         uuid.New(),
		CustomerID: cust.ID,
		CreatedAt:  o.now(),
		Total:      totals.Total,
	}
	if err := o.ledger.CreatePurchase(ctx, purchase); err != nil {
		o.refund(ctx, req.CustomerAccount, totals.Total, "purchase_not_recorded")
		return nil, errors.Wrap(err, "create purchase")
	}
	ctx = zctx.With(ctx, zap.String("purchase_id", purchase.ID.String()))
	lg = zctx.From(ctx)
	span.SetAttributes(attribute.String("purchase_id", purchase.ID.String()))

	sc := &saga{
		purchase: purchase,
		customer: cust,
		account:  req.CustomerAccount,
		billing:  req.Billing,
	}
	items := o.bookItems(ctx, sc, req.Items)

	res := &CheckoutResult{
		Outcome:    Classify(items),
		PurchaseID: purchase.ID,
		TotalPaid:  totals.Total,
		Items:      items,
	}
	for _, it := range items {
		res.Refunded = res.Refunded.Add(it.Refunded)
	}

	switch res.Outcome {
	case AllBooked:
		res.Success = true
		res.Message = "All items booked"
	case PartiallyBooked:
		res.Success = true
		res.Message = fmt.Sprintf("%d of %d items booked", countBooked(items), len(items))
	case NoneBooked:
		// Item-level refunds already went back; return the rest so the
		// customer's net balance change is zero.
		owed := totals.Total.Sub(res.Refunded)
		moved := o.refund(ctx, req.CustomerAccount, owed, "none_booked")
		res.Refunded = res.Refunded.Add(moved)
		res.Message = "No items could be booked; payment refunded"
		if !moved.Equal(owed) {
			res.Message = "No items could be booked; refund pending"
		}
	}

	o.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(res.Outcome))))
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	lg.Info("Checkout finished",
		zap.String("outcome", string(res.Outcome)),
		zap.String("refunded", res.Refunded.StringFixed(2)),
	)

	o.publish(ctx, Event{
		Type:       EventCheckoutCompleted,
		CustomerID: cust.ID,
		PurchaseID: purchase.ID,
		Outcome:    res.Outcome,
		Amount:     totals.Total.Sub(res.Refunded),
		OccurredAt: o.now(),
	})
	return res, nil
}

func validateItems(items []CartItem) error {
	if len(items) == 0 {
		return ErrEmptyCart
	}
	for i, it := range items {
		switch {
		case it.ProviderID == "":
			return &InvalidItemError{Index: i, Reason: "provider is required"}
		case it.ProductID == "":
			return &InvalidItemError{Index: i, Reason: "product is required"}
		case it.UnitPrice.IsNegative():
			return &InvalidItemError{Index: i, Reason: "unit price must not be negative"}
		case it.Quantity < 0:
			return &InvalidItemError{Index: i, Reason: "quantity must not be negative"}
		}
		if _, err := provider.ParseCategory(string(it.Category)); err != nil {
			return &InvalidItemError{Index: i, Reason: err.Error(), Err: err}
		}
		if !it.End.IsZero() && it.End.Before(it.Start) {
			return &InvalidItemError{Index: i, Reason: "end is before start"}
		}
	}
	return nil
}

func countBooked(items []ItemResult) int {
	n := 0
	for _, it := range items {
		if it.Success() {
			n++
		}
	}
	return n
}

// bookItems runs the per-item sub-pipelines and returns once every item has
// reached a terminal state.
func (o *Orchestrator) bookItems(ctx context.Context, sc *saga, items []CartItem) []ItemResult {
	results := make([]ItemResult, len(items))
	if !o.cfg.Parallel || len(items) < 2 {
		for i, it := range items {
			results[i] = o.bookItem(ctx, sc, i, it)
		}
		return results
	}

	var g errgroup.Group
	if o.cfg.Concurrency > 0 {
		g.SetLimit(o.cfg.Concurrency)
	}
	for i, it := range items {
		g.Go(func() error {
			results[i] = o.bookItem(ctx, sc, i, it)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// bookItem takes one line item from Pending to Booked or Failed.
func (o *Orchestrator) bookItem(ctx context.Context, sc *saga, idx int, item CartItem) ItemResult {
	res := ItemResult{
		Index:      idx,
		Category:   item.Category,
		Title:      item.Title,
		ProviderID: item.ProviderID,
		State:      StatePending,
		Price:      item.Price(),
	}

	ctx, span := o.tracer.Start(ctx, "booking.Item", trace.WithAttributes(
		attribute.Int("item", idx),
		attribute.String("category", string(item.Category)),
		attribute.String("provider_id", item.ProviderID),
	))
	defer span.End()
	ctx = zctx.With(ctx,
		zap.Int("item", idx),
		zap.String("category", string(item.Category)),
		zap.String("provider_id", item.ProviderID),
	)
	lg := zctx.From(ctx)

	fail := func(stage string, err error) ItemResult {
		res.State = StateFailed
		res.Error = err.Error()
		o.itemFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", string(item.Category)),
			attribute.String("stage", stage),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		lg.Warn("Item failed", zap.String("stage", stage), zap.Error(err))
		return res
	}

	p, err := o.resolveProvider(ctx, item.ProviderID)
	if err != nil {
		return fail("resolve", err)
	}
	if p.Category != item.Category {
		return fail("resolve", errors.Errorf("provider %s sells %s, not %s", p.ID, p.Category, item.Category))
	}
	conn, err := connector.For(p.Category)
	if err != nil {
		return fail("resolve", err)
	}
	target := connector.Item{
		ProductID: item.ProductID,
		Start:     item.Start,
		End:       item.End,
		Quantity:  item.Quantity,
	}

	o.bestEffort(ctx, "register_customer", func(ctx context.Context) error {
		_, err := o.gateway.Do(ctx, p, func(ctx context.Context, c connector.Caller) error {
			_, err := conn.RegisterCustomer(ctx, c, sc.customer)
			return err
		})
		return err
	})

	res.State = StateHoldAttempted
	hold, err := o.acquireHold(ctx, p, conn, target, item.Hold)
	if err != nil {
		return fail("hold", stepErr(ErrHoldCreationFailed, err))
	}
	res.State = StateHeld
	res.Protocol = hold.Protocol
	lg = lg.With(zap.String("protocol", string(hold.Protocol)))

	// Hold identifiers are protocol-specific: every later call for this item
	// goes through the protocol that produced the hold.
	res.State = StateReservationAttempted
	caller, err := o.gateway.On(p, hold.Protocol)
	var bk connector.Booking
	if err == nil {
		bk, err = conn.CreateReservation(ctx, caller, target, hold.ID, sc.customer)
	}
	if err != nil {
		res.Refunded = o.refund(ctx, sc.account, res.Price, "item_refund")
		return fail("reservation", stepErr(ErrReservationCreationFailed, err))
	}

	businessValue, commission := Split(res.Price)
	tax := res.Price.Mul(TaxRate).Round(2)
	o.bestEffort(ctx, "generate_invoice", func(ctx context.Context) error {
		link, err := conn.GenerateInvoice(ctx, caller, connector.Invoice{
			ReservationID: bk.ReservationID,
			Subtotal:      res.Price,
			Tax:           tax,
			Total:         res.Price.Add(tax),
			Billing: connector.Billing{
				Name:    sc.billing.Name,
				Email:   sc.billing.Email,
				Address: sc.billing.Address,
				TaxID:   sc.billing.TaxID,
			},
		})
		if err != nil {
			return stepErr(ErrInvoiceGenerationFailed, err)
		}
		res.InvoiceURL = link
		return nil
	})

	if businessValue.IsPositive() {
		if err := o.funds.Transfer(ctx, o.cfg.PlatformAccount, p.PayoutAccount, businessValue); err != nil {
			// The provider holds a firm booking; the payout is settled out of band.
			o.itemFailures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("category", string(item.Category)),
				attribute.String("stage", "payout"),
			))
			lg.Error("Provider payout failed",
				zap.String("amount", businessValue.StringFixed(2)),
				zap.String("payout_account", p.PayoutAccount),
				zap.Error(err),
			)
			res.Warning = stepErr(ErrTransferFailed, err).Error()
		}
	}

	r := &Reservation{
		ID:            uuid.New(),
		PurchaseID:    sc.purchase.ID,
		ProviderID:    p.ID,
		Category:      p.Category,
		Title:         item.Title,
		Code:          bk.Code,
		InvoiceURL:    res.InvoiceURL,
		BusinessValue: businessValue,
		Commission:    commission,
		Protocol:      hold.Protocol,
		Active:        true,
		CreatedAt:     o.now(),
	}
	if err := o.ledger.RecordReservation(ctx, r); err != nil {
		lg.Error("Reservation not recorded",
			zap.String("reservation_code", bk.Code),
			zap.Error(err),
		)
		res.Warning = "reservation not recorded: " + err.Error()
	} else {
		res.ReservationID = r.ID
	}

	res.State = StateBooked
	res.ReservationCode = bk.Code
	lg.Info("Item booked",
		zap.String("reservation_code", bk.Code),
		zap.String("business_value", businessValue.StringFixed(2)),
		zap.String("commission", commission.StringFixed(2)),
	)
	return res
}

// resolveProvider returns an active provider that has at least one endpoint
// record. Anything else is ErrServiceNotFound.
func (o *Orchestrator) resolveProvider(ctx context.Context, id string) (*provider.Provider, error) {
	p, err := o.directory.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(p.Ordered()) == 0 {
		return nil, ErrServiceNotFound
	}
	return p, nil
}

// acquireHold reuses an existing eligible hold or creates a new one with
// REST to SOAP fallback.
func (o *Orchestrator) acquireHold(ctx context.Context, p *provider.Provider, conn connector.Connector, target connector.Item, existing *Hold) (connector.Hold, error) {
	if existing.Eligible(o.now()) && existing.Protocol != "" {
		if _, ok := p.Endpoint(existing.Protocol); ok {
			return connector.Hold{
				ID:        existing.ID,
				ExpiresAt: existing.ExpiresAt,
				Protocol:  existing.Protocol,
			}, nil
		}
	}

	var hold connector.Hold
	_, err := o.gateway.Do(ctx, p, func(ctx context.Context, c connector.Caller) error {
		h, err := conn.CreateHold(ctx, c, target, o.cfg.HoldDuration)
		if err != nil {
			return err
		}
		hold = h
		return nil
	})
	if err != nil {
		return connector.Hold{}, err
	}
	return hold, nil
}
