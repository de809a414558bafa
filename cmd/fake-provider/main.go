// Command fake-provider serves one fake provider per category, each speaking
// REST and SOAP, plus an always-approving funds transfer service. It backs
// local development together with cmd/seed-db.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/trip-checkout/internal/connector/providertest"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

func main() {
	var addr string
	flag.StringVar(&addr, "addr", "localhost:8081", "listen address")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, addr); err != nil {
		slog.Error("fake provider failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	for _, c := range provider.Categories {
		prefix := "/" + string(c)
		mux.Handle(prefix+"/", http.StripPrefix(prefix, providertest.New()))
		slog.Info("provider mounted", slog.String("category", string(c)), slog.String("path", prefix))
	}
	mux.HandleFunc("POST /funds/transfers", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("GET /funds/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("fake provider listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve")
	}
	return nil
}
