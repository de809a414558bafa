package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/trip-checkout/internal/cart"
	"github.com/xenking/trip-checkout/internal/connector"
	"github.com/xenking/trip-checkout/internal/domain/auth"
	"github.com/xenking/trip-checkout/internal/domain/booking"
	"github.com/xenking/trip-checkout/internal/events"
	"github.com/xenking/trip-checkout/internal/funds"
	"github.com/xenking/trip-checkout/internal/handler"
	"github.com/xenking/trip-checkout/internal/repository"
	"github.com/xenking/trip-checkout/pkg/health"
	"github.com/xenking/trip-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	svc, err := newService(ctx, lg, m.TracerProvider(), m.MeterProvider(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	svc.health.Start(ctx, 10*time.Second)
	svc.health.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// A checkout makes several sequential provider calls per item.
		WriteTimeout:   2 * time.Minute,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler:        svc.handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		svc.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		svc.health.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// service is the wired application without its listener.
type service struct {
	handler http.Handler
	health  *health.Health
	closers []func()
}

// Close releases connections in reverse order of acquisition.
func (s *service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func newService(ctx context.Context, lg *zap.Logger, tp trace.TracerProvider, mp metric.MeterProvider, cfg *Config) (_ *service, rerr error) {
	svc := &service{health: health.New()}
	defer func() {
		if rerr != nil {
			svc.Close()
		}
	}()

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	svc.closers = append(svc.closers, pool.Close)

	if cfg.Database.Migrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
	}

	// Redis carts.
	rdb, err := cart.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect redis")
	}
	svc.closers = append(svc.closers, func() { _ = rdb.Close() })
	carts := cart.NewStore(rdb, cfg.Cart.TTL)

	// Outbound clients.
	fundsClient := funds.New(funds.Options{
		URL:            cfg.Funds.URL,
		Timeout:        cfg.Funds.Timeout,
		TracerProvider: tp,
	})
	providerHTTP := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithMeterProvider(mp),
	)}
	gateway := connector.NewGateway(
		connector.NewREST(providerHTTP, cfg.Providers.Timeout),
		connector.NewSOAP(providerHTTP, cfg.Providers.Timeout),
	)

	publisher, err := newPublisher(ctx, lg, cfg.Events)
	if err != nil {
		return nil, errors.Wrap(err, "create event publisher")
	}

	// Health checks.
	svc.health.Ready("postgres", 5*time.Second, pool.Ping)
	svc.health.Ready("redis", 2*time.Second, health.PingCheck(carts))
	svc.health.Ready("funds", 2*time.Second, health.PingCheck(fundsClient))
	svc.health.Live("goroutines", time.Second, health.GoroutineCountCheck(10000))
	svc.health.Live("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	// Repositories.
	customers := repository.NewCustomerRepository(pool)
	directory := repository.NewDirectoryRepository(pool)
	ledger := repository.NewLedgerRepository(pool)
	apikeys := repository.NewAPIKeyRepository(pool)

	// Domain services.
	orchestrator, err := booking.NewOrchestrator(booking.Config{
		PlatformAccount: cfg.PlatformAccount,
		HoldDuration:    cfg.Providers.HoldDuration,
		Parallel:        cfg.Saga.Parallel,
		Concurrency:     cfg.Saga.Concurrency,
	}, booking.Deps{
		Customers:      customers,
		Directory:      directory,
		Gateway:        gateway,
		Funds:          fundsClient,
		Ledger:         ledger,
		Publisher:      publisher,
		TracerProvider: tp,
		MeterProvider:  mp,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create orchestrator")
	}

	// HTTP handlers.
	pepper := []byte(cfg.APIKeyPepper)
	h := handler.NewHandler(handler.Config{IdempotencyTTL: cfg.Cart.TTL}, orchestrator, carts)
	security := handler.NewSecurity(apikeys, pepper)

	// LogRequests runs inside the router to see the matched route pattern.
	r := chi.NewRouter()
	r.Use(httpmiddleware.LogRequests())
	r.Get("/livez", svc.health.Handler(health.Liveness))
	r.Get("/readyz", svc.health.Handler(health.Readiness))
	r.Route("/api", func(r chi.Router) {
		r.Use(
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				RPS:     cfg.RateLimit.RPS,
				Burst:   cfg.RateLimit.Burst,
				KeyFunc: rateLimitKey(pepper),
			}),
			security.Middleware,
		)
		h.Routes(r)
	})
	svc.handler = httpmiddleware.Wrap(r,
		httpmiddleware.Instrument("trip-api", tp, mp),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Recovery(),
	)

	return svc, nil
}

func newPublisher(ctx context.Context, lg *zap.Logger, cfg EventsConfig) (booking.Publisher, error) {
	if cfg.TopicARN == "" {
		lg.Info("No events topic configured, logging booking events")
		return events.NewLogPublisher(lg.Named("events")), nil
	}
	return events.NewSNSPublisher(ctx, cfg.TopicARN)
}

// rateLimitKey buckets authenticated callers by key hash and everyone else by
// client IP.
func rateLimitKey(pepper []byte) func(*http.Request) string {
	return func(r *http.Request) string {
		if key := r.Header.Get(handler.APIKeyHeader); key != "" {
			return "key:" + auth.Hash(pepper, key)
		}
		return "ip:" + httpmiddleware.ClientIP(r)
	}
}
