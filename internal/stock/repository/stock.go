package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/farmabase/farmabase-backend/pkg/database"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// StockRepository handles aggregate stock and lot persistence. The movement and
// dispensation engines mutate both tables through it under one transaction, so
// the aggregate-equals-sum-of-lots invariant holds at every commit point.
type StockRepository struct {
	db *database.DB
}

// NewStockRepository creates a new stock repository
func NewStockRepository(db *database.DB) *StockRepository {
	return &StockRepository{db: db}
}

// AggregateQuantity returns the on-hand quantity for a medication at an
// establishment. A missing row reads as zero.
func (r *StockRepository) AggregateQuantity(ctx context.Context, q sqlx.QueryerContext, medicationID, establishmentID string) (int, error) {
	if q == nil {
		q = r.db
	}

	var quantity int
	query := `SELECT quantity FROM aggregate_stock WHERE medication_id = $1 AND establishment_id = $2`
	err := sqlx.GetContext(ctx, q, &quantity, query, medicationID, establishmentID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return quantity, nil
}

// AggregateQuantityForUpdate reads the aggregate quantity with a row lock,
// serializing concurrent writers on the same medication and establishment.
func (r *StockRepository) AggregateQuantityForUpdate(ctx context.Context, tx *sqlx.Tx, medicationID, establishmentID string) (int, error) {
	var quantity int
	query := `
		SELECT quantity FROM aggregate_stock
		WHERE medication_id = $1 AND establishment_id = $2
		FOR UPDATE
	`
	err := tx.GetContext(ctx, &quantity, query, medicationID, establishmentID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return quantity, nil
}

// AddToAggregate applies a signed delta to the aggregate record, creating it on
// first receipt.
func (r *StockRepository) AddToAggregate(ctx context.Context, tx *sqlx.Tx, medicationID, establishmentID string, delta int) error {
	query := `
		INSERT INTO aggregate_stock (medication_id, establishment_id, quantity, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (medication_id, establishment_id)
		DO UPDATE SET quantity = aggregate_stock.quantity + $3, updated_at = NOW()
	`
	if _, err := tx.ExecContext(ctx, query, medicationID, establishmentID, delta); err != nil {
		return fmt.Errorf("failed to update aggregate stock: %w", err)
	}
	return nil
}

// CreateLot creates a new lot
func (r *StockRepository) CreateLot(ctx context.Context, tx *sqlx.Tx, lot *domain.Lot) error {
	if lot.ID == "" {
		lot.ID = uuid.New().String()
	}

	query := `
		INSERT INTO lots (
			id, medication_id, establishment_id, lot_number, expiry_date,
			quantity, unit_cost, manufacturer, origin_movement_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	return tx.QueryRowxContext(ctx, query,
		lot.ID, lot.MedicationID, lot.EstablishmentID, lot.LotNumber, lot.ExpiryDate,
		lot.Quantity, lot.UnitCost, lot.Manufacturer, lot.OriginMovementID,
	).Scan(&lot.CreatedAt, &lot.UpdatedAt)
}

// AvailableLotsForUpdate returns the non-empty lots for a medication at an
// establishment in ascending expiry order, locked for consumption.
func (r *StockRepository) AvailableLotsForUpdate(ctx context.Context, tx *sqlx.Tx, medicationID, establishmentID string) ([]*domain.Lot, error) {
	var lots []*domain.Lot
	query := `
		SELECT * FROM lots
		WHERE medication_id = $1 AND establishment_id = $2 AND quantity > 0
		ORDER BY expiry_date, created_at
		FOR UPDATE
	`
	if err := tx.SelectContext(ctx, &lots, query, medicationID, establishmentID); err != nil {
		return nil, err
	}
	return lots, nil
}

// DecrementLot consumes quantity from a lot. The guard in the WHERE clause
// refuses to take a lot below zero even if the caller's arithmetic is wrong.
func (r *StockRepository) DecrementLot(ctx context.Context, tx *sqlx.Tx, lotID string, quantity int) error {
	query := `
		UPDATE lots SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
	`
	result, err := tx.ExecContext(ctx, query, lotID, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement lot %s: %w", lotID, err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("lot %s holds less than %d units", lotID, quantity)
	}
	return nil
}

// ListLots lists all lots for a medication at an establishment, earliest expiry first
func (r *StockRepository) ListLots(ctx context.Context, medicationID, establishmentID string) ([]*domain.Lot, error) {
	var lots []*domain.Lot
	query := `
		SELECT * FROM lots
		WHERE medication_id = $1 AND establishment_id = $2
		ORDER BY expiry_date, created_at
	`
	if err := r.db.SelectContext(ctx, &lots, query, medicationID, establishmentID); err != nil {
		return nil, err
	}
	return lots, nil
}

// ExpiringLots lists non-empty lots at an establishment expiring within days
func (r *StockRepository) ExpiringLots(ctx context.Context, establishmentID string, withinDays int) ([]*domain.Lot, error) {
	var lots []*domain.Lot
	query := `
		SELECT * FROM lots
		WHERE establishment_id = $1 AND quantity > 0
		AND expiry_date <= NOW() + INTERVAL '1 day' * $2
		ORDER BY expiry_date
	`
	if err := r.db.SelectContext(ctx, &lots, query, establishmentID, withinDays); err != nil {
		return nil, err
	}
	return lots, nil
}

// LotTotal sums lot quantities for a medication at an establishment. Used by
// the lot-level availability check beneath the aggregate check.
func (r *StockRepository) LotTotal(ctx context.Context, q sqlx.QueryerContext, medicationID, establishmentID string) (int, error) {
	if q == nil {
		q = r.db
	}

	var total sql.NullInt64
	query := `
		SELECT SUM(quantity) FROM lots
		WHERE medication_id = $1 AND establishment_id = $2
	`
	if err := sqlx.GetContext(ctx, q, &total, query, medicationID, establishmentID); err != nil {
		return 0, err
	}
	if !total.Valid {
		return 0, nil
	}
	return int(total.Int64), nil
}
