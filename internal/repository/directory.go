package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/trip-checkout/internal/domain/provider"
)

const (
	getProviderSQL = `SELECT id, name, category, payout_account, active
		FROM providers WHERE id = $1 AND active = TRUE`

	listEndpointsSQL = `SELECT protocol, base_uri, paths
		FROM provider_endpoints WHERE provider_id = $1`

	upsertProviderSQL = `INSERT INTO providers (id, name, category, payout_account, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			payout_account = EXCLUDED.payout_account,
			active = EXCLUDED.active`

	deleteEndpointsSQL = `DELETE FROM provider_endpoints WHERE provider_id = $1`

	insertEndpointSQL = `INSERT INTO provider_endpoints (provider_id, protocol, base_uri, paths)
		VALUES ($1, $2, $3, $4)`
)

var _ provider.Directory = (*DirectoryRepository)(nil)

// DirectoryRepository implements provider.Directory backed by PostgreSQL.
type DirectoryRepository struct {
	pool *pgxpool.Pool
}

// NewDirectoryRepository returns a DirectoryRepository that uses the given pool.
func NewDirectoryRepository(pool *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

// Resolve returns an active provider with its endpoint records.
// Returns provider.ErrNotFound for missing or inactive providers.
func (r *DirectoryRepository) Resolve(ctx context.Context, id string) (*provider.Provider, error) {
	var (
		p        provider.Provider
		category string
	)
	err := r.pool.QueryRow(ctx, getProviderSQL, id).Scan(
		&p.ID, &p.Name, &category, &p.PayoutAccount, &p.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, provider.ErrNotFound
		}
		return nil, fmt.Errorf("getting provider %q: %w", id, err)
	}
	if p.Category, err = provider.ParseCategory(category); err != nil {
		return nil, fmt.Errorf("provider %q: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, listEndpointsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints of %q: %w", id, err)
	}
	p.Endpoints, err = pgx.CollectRows(rows, scanEndpoint)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints of %q: %w", id, err)
	}
	return &p, nil
}

// Upsert replaces a provider and all of its endpoint records in one transaction.
func (r *DirectoryRepository) Upsert(ctx context.Context, p *provider.Provider) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertProviderSQL,
			p.ID, p.Name, string(p.Category), p.PayoutAccount, p.Active,
		); err != nil {
			return fmt.Errorf("upserting provider %q: %w", p.ID, err)
		}
		if _, err := tx.Exec(ctx, deleteEndpointsSQL, p.ID); err != nil {
			return fmt.Errorf("clearing endpoints of %q: %w", p.ID, err)
		}
		for _, ep := range p.Endpoints {
			paths, err := json.Marshal(ep.Paths)
			if err != nil {
				return fmt.Errorf("marshaling paths: %w", err)
			}
			if _, err := tx.Exec(ctx, insertEndpointSQL,
				p.ID, string(ep.Protocol), ep.BaseURI, paths,
			); err != nil {
				return fmt.Errorf("inserting %s endpoint of %q: %w", ep.Protocol, p.ID, err)
			}
		}
		return nil
	})
}

func scanEndpoint(row pgx.CollectableRow) (provider.Endpoint, error) {
	var (
		ep       provider.Endpoint
		protocol string
		paths    []byte
	)
	if err := row.Scan(&protocol, &ep.BaseURI, &paths); err != nil {
		return ep, err
	}
	ep.Protocol = provider.Protocol(protocol)
	if err := json.Unmarshal(paths, &ep.Paths); err != nil {
		return ep, fmt.Errorf("unmarshaling paths: %w", err)
	}
	return ep, nil
}
