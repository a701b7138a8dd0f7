package repository

import (
	"context"

	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/farmabase/farmabase-backend/pkg/database"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MovementRepository handles movement header and item persistence. Movements
// are append-only: there is no update or delete.
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// DocumentExists reports whether a document number is already used
func (r *MovementRepository) DocumentExists(ctx context.Context, q sqlx.QueryerContext, documentNumber string) (bool, error) {
	if q == nil {
		q = r.db
	}

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM movements WHERE document_number = $1)`
	if err := sqlx.GetContext(ctx, q, &exists, query, documentNumber); err != nil {
		return false, err
	}
	return exists, nil
}

// Create persists a movement header
func (r *MovementRepository) Create(ctx context.Context, tx *sqlx.Tx, m *domain.Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO movements (
			id, subtype, document_number, document_date, receipt_date,
			total_value, justification, establishment_id, requisition_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`

	err := tx.QueryRowxContext(ctx, query,
		m.ID, m.Subtype, m.DocumentNumber, m.DocumentDate, m.ReceiptDate,
		m.TotalValue, m.Justification, m.EstablishmentID, m.RequisitionID,
	).Scan(&m.CreatedAt)
	if err != nil {
		// Backstop for the race two transactions lose against the unique
		// index after both passed the DocumentExists pre-check.
		if database.IsUniqueViolation(err, "document_number") {
			return &domain.DuplicateDocumentError{DocumentNumber: m.DocumentNumber}
		}
		if mapped := database.MapPQError(err); mapped != nil {
			return mapped
		}
		return err
	}
	return nil
}

// CreateItem persists one movement line with its lot snapshot
func (r *MovementRepository) CreateItem(ctx context.Context, tx *sqlx.Tx, item *domain.MovementItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO movement_items (
			id, movement_id, medication_id, lot_id, lot_number,
			lot_expiry, manufacturer, quantity, unit_value
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := tx.ExecContext(ctx, query,
		item.ID, item.MovementID, item.MedicationID, item.LotID, item.LotNumber,
		item.LotExpiry, item.Manufacturer, item.Quantity, item.UnitValue,
	)
	return err
}

// GetByID loads a movement with its items
func (r *MovementRepository) GetByID(ctx context.Context, id string) (*domain.Movement, error) {
	var m domain.Movement
	query := `SELECT * FROM movements WHERE id = $1`
	if err := r.db.GetContext(ctx, &m, query, id); err != nil {
		return nil, err
	}

	itemsQuery := `SELECT * FROM movement_items WHERE movement_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &m.Items, itemsQuery, id); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByEstablishment lists movement headers for an establishment, newest first
func (r *MovementRepository) ListByEstablishment(ctx context.Context, establishmentID string, limit, offset int) ([]*domain.Movement, error) {
	var movements []*domain.Movement
	query := `
		SELECT * FROM movements
		WHERE establishment_id = $1
		ORDER BY document_date DESC, created_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &movements, query, establishmentID, limit, offset); err != nil {
		return nil, err
	}
	return movements, nil
}
