package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/trip-checkout/internal/connector/providertest"
	"github.com/xenking/trip-checkout/internal/domain/auth"
	"github.com/xenking/trip-checkout/internal/domain/customer"
	"github.com/xenking/trip-checkout/internal/domain/provider"
	"github.com/xenking/trip-checkout/internal/repository"
)

var customers = []customer.Customer{
	{ID: "c-1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "+351910000001", DocumentID: "PT-100001"},
	{ID: "c-2", FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", Phone: "+351910000002", DocumentID: "PT-100002"},
}

func main() {
	var (
		databaseURL  string
		providerURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&providerURL, "provider-url", "http://localhost:8081", "base URL of cmd/fake-provider")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or TRIP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or TRIP_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("TRIP_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or TRIP_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("TRIP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, strings.TrimRight(providerURL, "/"), apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, providerURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL, repository.PoolConfig{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.Migrate(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCustomers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedProviders(ctx, pool, providerURL); err != nil {
		return errors.Wrap(err, "seed providers")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func seedCustomers(ctx context.Context, pool *pgxpool.Pool) error {
	repo := repository.NewCustomerRepository(pool)
	for i := range customers {
		if err := repo.Upsert(ctx, &customers[i]); err != nil {
			return errors.Wrapf(err, "upsert customer %s", customers[i].ID)
		}
	}
	slog.Info("customers seeded", slog.Int("count", len(customers)))
	return nil
}

// seedProviders registers one provider per category. Each is served by
// cmd/fake-provider under /<category>, speaking both protocols.
func seedProviders(ctx context.Context, pool *pgxpool.Pool, providerURL string) error {
	repo := repository.NewDirectoryRepository(pool)
	for _, c := range provider.Categories {
		id := strings.ReplaceAll(string(c), "_", "-") + "-1"
		p := providertest.Provider(id, c, providerURL+"/"+string(c), provider.ProtocolREST, provider.ProtocolSOAP)
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert provider %s", id)
		}
		slog.Info("provider seeded", slog.String("id", id), slog.String("category", string(c)))
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	repo := repository.NewAPIKeyRepository(pool)
	info := &auth.APIKeyInfo{
		ID:      "seed",
		KeyHash: auth.Hash([]byte(pepper), apiKey),
		Name:    "seed",
		Scopes:  []string{"checkout", "cancel", "carts"},
	}
	if err := repo.Upsert(ctx, info); err != nil {
		return err
	}
	slog.Info("api key seeded", slog.String("name", info.Name))
	return nil
}
