package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/trip-checkout/internal/domain/booking"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

const (
	createPurchaseSQL = `INSERT INTO purchases (id, customer_id, total, created_at)
		VALUES ($1, $2, $3, $4)`

	createReservationSQL = `INSERT INTO reservations (id, provider_id, category, title, reservation_code,
			invoice_url, business_value, commission, protocol, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	linkReservationSQL = `INSERT INTO purchase_reservations (purchase_id, reservation_id)
		VALUES ($1, $2)`

	reservationColumns = `r.id, pr.purchase_id, r.provider_id, r.category, r.title, r.reservation_code,
		r.invoice_url, r.business_value, r.commission, r.protocol, r.active, r.created_at`

	getReservationSQL = `SELECT ` + reservationColumns + `
		FROM reservations r
		JOIN purchase_reservations pr ON pr.reservation_id = r.id
		WHERE r.id = $1`

	ownedBySQL = `SELECT EXISTS (
		SELECT 1 FROM purchase_reservations pr
		JOIN purchases p ON p.id = pr.purchase_id
		WHERE pr.reservation_id = $1 AND p.customer_id = $2)`

	deactivateReservationSQL = `UPDATE reservations SET active = FALSE WHERE id = $1`

	listReservationsByCustomerSQL = `SELECT ` + reservationColumns + `
		FROM reservations r
		JOIN purchase_reservations pr ON pr.reservation_id = r.id
		JOIN purchases p ON p.id = pr.purchase_id
		WHERE p.customer_id = $1
		ORDER BY r.created_at DESC`
)

var _ booking.Ledger = (*LedgerRepository)(nil)

// LedgerRepository implements booking.Ledger backed by PostgreSQL.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository returns a LedgerRepository that uses the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// CreatePurchase persists a purchase row.
func (r *LedgerRepository) CreatePurchase(ctx context.Context, p *booking.Purchase) error {
	_, err := r.pool.Exec(ctx, createPurchaseSQL, p.ID, p.CustomerID, p.Total, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating purchase %s: %w", p.ID, err)
	}
	return nil
}

// RecordReservation inserts the reservation and its purchase link in one
// transaction.
func (r *LedgerRepository) RecordReservation(ctx context.Context, res *booking.Reservation) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createReservationSQL,
			res.ID, res.ProviderID, string(res.Category), res.Title, res.Code,
			res.InvoiceURL, res.BusinessValue, res.Commission, string(res.Protocol),
			res.Active, res.CreatedAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, linkReservationSQL, res.PurchaseID, res.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording reservation %s: %w", res.ID, err)
	}
	return nil
}

// GetReservation returns booking.ErrReservationNotFound when absent.
func (r *LedgerRepository) GetReservation(ctx context.Context, id uuid.UUID) (*booking.Reservation, error) {
	rows, err := r.pool.Query(ctx, getReservationSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting reservation %s: %w", id, err)
	}
	res, err := pgx.CollectExactlyOneRow(rows, scanReservation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrReservationNotFound
		}
		return nil, fmt.Errorf("getting reservation %s: %w", id, err)
	}
	return &res, nil
}

// OwnedBy reports whether the reservation is linked to a purchase of the customer.
func (r *LedgerRepository) OwnedBy(ctx context.Context, reservationID uuid.UUID, customerID string) (bool, error) {
	var owned bool
	if err := r.pool.QueryRow(ctx, ownedBySQL, reservationID, customerID).Scan(&owned); err != nil {
		return false, fmt.Errorf("checking owner of %s: %w", reservationID, err)
	}
	return owned, nil
}

// Deactivate flips the reservation's active flag off.
func (r *LedgerRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deactivateReservationSQL, id)
	if err != nil {
		return fmt.Errorf("deactivating reservation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrReservationNotFound
	}
	return nil
}

// ListByCustomer returns the customer's reservations, newest first.
func (r *LedgerRepository) ListByCustomer(ctx context.Context, customerID string) ([]booking.Reservation, error) {
	rows, err := r.pool.Query(ctx, listReservationsByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing reservations of %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanReservation)
}

func scanReservation(row pgx.CollectableRow) (booking.Reservation, error) {
	var (
		res      booking.Reservation
		category string
		protocol string
	)
	err := row.Scan(
		&res.ID, &res.PurchaseID, &res.ProviderID, &category, &res.Title, &res.Code,
		&res.InvoiceURL, &res.BusinessValue, &res.Commission, &protocol, &res.Active, &res.CreatedAt,
	)
	res.Category = provider.Category(category)
	res.Protocol = provider.Protocol(protocol)
	return res, err
}
