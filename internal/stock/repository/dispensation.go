package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/farmabase/farmabase-backend/pkg/database"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// DispensationRepository handles dispensation persistence. Append-only.
type DispensationRepository struct {
	db *database.DB
}

// NewDispensationRepository creates a new dispensation repository
func NewDispensationRepository(db *database.DB) *DispensationRepository {
	return &DispensationRepository{db: db}
}

// Create persists a dispensation header
func (r *DispensationRepository) Create(ctx context.Context, tx *sqlx.Tx, d *domain.Dispensation) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.DispensedAt.IsZero() {
		d.DispensedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO dispensations (
			id, patient_name, patient_cpf, prescriber, reference_document,
			establishment_id, dispensed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	return tx.QueryRowxContext(ctx, query,
		d.ID, d.PatientName, d.PatientCPF, d.Prescriber, d.ReferenceDocument,
		d.EstablishmentID, d.DispensedAt,
	).Scan(&d.CreatedAt)
}

// CreateItem persists one dispensed line with its lot snapshot
func (r *DispensationRepository) CreateItem(ctx context.Context, tx *sqlx.Tx, item *domain.DispensationItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO dispensation_items (
			id, dispensation_id, medication_id, lot_id, lot_number, lot_expiry,
			manufacturer, quantity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.ExecContext(ctx, query,
		item.ID, item.DispensationID, item.MedicationID, item.LotID,
		item.LotNumber, item.LotExpiry, item.Manufacturer, item.Quantity,
	)
	return err
}

// GetByID loads a dispensation with its items
func (r *DispensationRepository) GetByID(ctx context.Context, id string) (*domain.Dispensation, error) {
	var d domain.Dispensation
	query := `SELECT * FROM dispensations WHERE id = $1`
	if err := r.db.GetContext(ctx, &d, query, id); err != nil {
		return nil, err
	}

	itemsQuery := `SELECT * FROM dispensation_items WHERE dispensation_id = $1 ORDER BY id`
	if err := r.db.SelectContext(ctx, &d.Items, itemsQuery, id); err != nil {
		return nil, err
	}
	return &d, nil
}

// LastDispensedAt returns when a patient last received a medication at an
// establishment, or nil if never. Feeds the early-refill advisory.
func (r *DispensationRepository) LastDispensedAt(ctx context.Context, q sqlx.QueryerContext, patientCPF, medicationID, establishmentID string) (*time.Time, error) {
	if q == nil {
		q = r.db
	}

	var last time.Time
	query := `
		SELECT d.dispensed_at
		FROM dispensations d
		JOIN dispensation_items di ON di.dispensation_id = d.id
		WHERE d.patient_cpf = $1 AND di.medication_id = $2 AND d.establishment_id = $3
		ORDER BY d.dispensed_at DESC
		LIMIT 1
	`
	err := sqlx.GetContext(ctx, q, &last, query, patientCPF, medicationID, establishmentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &last, nil
}
