package booking

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/trip-checkout/internal/connector"
	"github.com/xenking/trip-checkout/internal/domain/customer"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

// Gateway runs provider operations with REST to SOAP fallback and pins
// follow-up calls to a protocol.
type Gateway interface {
	Do(ctx context.Context, p *provider.Provider, fn func(context.Context, connector.Caller) error) (provider.Protocol, error)
	On(p *provider.Provider, proto provider.Protocol) (connector.Caller, error)
}

// Config holds orchestrator settings.
type Config struct {
	// PlatformAccount is the central account that receives debits and pays
	// providers and refunds.
	PlatformAccount string
	// HoldDuration is requested from providers when creating holds.
	HoldDuration time.Duration
	// Parallel runs per-item sub-pipelines concurrently.
	Parallel bool
	// Concurrency bounds parallel sub-pipelines. Zero means one per item.
	Concurrency int
}

// Deps are the collaborators of the orchestrator. Publisher, Now and the
// telemetry providers are optional.
type Deps struct {
	Customers      customer.Repository
	Directory      provider.Directory
	Gateway        Gateway
	Funds          Funds
	Ledger         Ledger
	Publisher      Publisher
	Now            func() time.Time
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Orchestrator runs the checkout saga and the cancellation pipeline.
type Orchestrator struct {
	cfg       Config
	customers customer.Repository
	directory provider.Directory
	gateway   Gateway
	funds     Funds
	ledger    Ledger
	publisher Publisher
	now       func() time.Time

	tracer        trace.Tracer
	outcomes      metric.Int64Counter
	itemFailures  metric.Int64Counter
	compensations metric.Int64Counter
}

// NewOrchestrator validates the configuration and creates an Orchestrator.
func NewOrchestrator(cfg Config, deps Deps) (*Orchestrator, error) {
	if cfg.PlatformAccount == "" {
		return nil, errors.New("platform account is required")
	}
	if deps.Customers == nil || deps.Directory == nil || deps.Gateway == nil || deps.Funds == nil || deps.Ledger == nil {
		return nil, errors.New("missing orchestrator dependency")
	}
	if cfg.HoldDuration <= 0 {
		cfg.HoldDuration = 15 * time.Minute
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.TracerProvider == nil {
		deps.TracerProvider = tracenoop.NewTracerProvider()
	}
	if deps.MeterProvider == nil {
		deps.MeterProvider = metricnoop.NewMeterProvider()
	}

	o := &Orchestrator{
		cfg:       cfg,
		customers: deps.Customers,
		directory: deps.Directory,
		gateway:   deps.Gateway,
		funds:     deps.Funds,
		ledger:    deps.Ledger,
		publisher: deps.Publisher,
		now:       deps.Now,
		tracer:    deps.TracerProvider.Tracer("booking"),
	}

	meter := deps.MeterProvider.Meter("booking")
	var err error
	if o.outcomes, err = meter.Int64Counter("booking.checkout.outcomes",
		metric.WithDescription("Checkouts by terminal outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "outcomes counter")
	}
	if o.itemFailures, err = meter.Int64Counter("booking.item.failures",
		metric.WithDescription("Line item failures by category and stage"),
	); err != nil {
		return nil, errors.Wrap(err, "item failures counter")
	}
	if o.compensations, err = meter.Int64Counter("booking.compensations",
		metric.WithDescription("Compensating transfers issued"),
	); err != nil {
		return nil, errors.Wrap(err, "compensations counter")
	}
	return o, nil
}

// bestEffort runs a side-effect whose failure must never change the saga's
// course. Failures are logged and dropped.
func (o *Orchestrator) bestEffort(ctx context.Context, step string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		zctx.From(ctx).Warn("Best-effort step failed", zap.String("step", step), zap.Error(err))
	}
}

// publish emits an event as a best-effort side-effect.
func (o *Orchestrator) publish(ctx context.Context, e Event) {
	if o.publisher == nil {
		return
	}
	o.bestEffort(ctx, "publish_"+string(e.Type), func(ctx context.Context) error {
		return o.publisher.Publish(ctx, e)
	})
}

// refund moves amount from the platform account back to the customer and
// returns what was actually moved.
func (o *Orchestrator) refund(ctx context.Context, to string, amount decimal.Decimal, kind string) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	lg := zctx.From(ctx)
	if err := o.funds.Transfer(ctx, o.cfg.PlatformAccount, to, amount); err != nil {
		lg.Error("Compensating transfer failed",
			zap.String("kind", kind),
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err),
		)
		return decimal.Zero
	}
	o.compensations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	lg.Info("Compensating transfer issued",
		zap.String("kind", kind),
		zap.String("amount", amount.StringFixed(2)),
	)
	return amount
}

func (o *Orchestrator) resolveCustomer(ctx context.Context, id string) (*customer.Customer, error) {
	c, err := o.customers.Get(ctx, id)
	if errors.Is(err, customer.ErrNotFound) {
		return nil, errors.Wrapf(ErrCustomerNotFound, "%s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get customer")
	}
	return c, nil
}
