package booking

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/trip-checkout/internal/connector"
)

// ErrNotAvailable is returned when a provider reports no inventory for an item.
var ErrNotAvailable = errors.New("not available")

// PrepareHolds secures holds for items ahead of a deferred checkout. Items
// that already carry an eligible hold are kept as they are. Items whose hold
// could not be created come back without one and with an error message.
func (o *Orchestrator) PrepareHolds(ctx context.Context, customerID string, items []CartItem) ([]HoldResult, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	if _, err := o.resolveCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	ctx = zctx.With(ctx, zap.String("customer_id", customerID))

	results := make([]HoldResult, len(items))
	var g errgroup.Group
	switch {
	case !o.cfg.Parallel:
		g.SetLimit(1)
	case o.cfg.Concurrency > 0:
		g.SetLimit(o.cfg.Concurrency)
	}
	for i, it := range items {
		g.Go(func() error {
			results[i] = o.prepareHold(ctx, it)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (o *Orchestrator) prepareHold(ctx context.Context, item CartItem) HoldResult {
	if item.Hold.Eligible(o.now()) {
		return HoldResult{Item: item}
	}
	item.Hold = nil

	p, err := o.resolveProvider(ctx, item.ProviderID)
	if err != nil {
		return HoldResult{Item: item, Error: err.Error()}
	}
	conn, err := connector.For(p.Category)
	if err != nil {
		return HoldResult{Item: item, Error: err.Error()}
	}
	target := connector.Item{
		ProductID: item.ProductID,
		Start:     item.Start,
		End:       item.End,
		Quantity:  item.Quantity,
	}

	var hold connector.Hold
	_, err = o.gateway.Do(ctx, p, func(ctx context.Context, c connector.Caller) error {
		ok, err := conn.CheckAvailability(ctx, c, target)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotAvailable
		}
		hold, err = conn.CreateHold(ctx, c, target, o.cfg.HoldDuration)
		return err
	})
	if err != nil {
		err = stepErr(ErrHoldCreationFailed, err)
		zctx.From(ctx).Warn("Hold not prepared",
			zap.String("provider_id", item.ProviderID),
			zap.String("product_id", item.ProductID),
			zap.Error(err),
		)
		return HoldResult{Item: item, Error: err.Error()}
	}

	item.Hold = &Hold{ID: hold.ID, ExpiresAt: hold.ExpiresAt, Protocol: hold.Protocol}
	return HoldResult{Item: item}
}
