package repository

import (
	"context"
	"database/sql"

	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/farmabase/farmabase-backend/pkg/database"
	"github.com/farmabase/farmabase-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MedicationRepository handles medication catalog persistence
type MedicationRepository struct {
	db *database.DB
}

// NewMedicationRepository creates a new medication repository
func NewMedicationRepository(db *database.DB) *MedicationRepository {
	return &MedicationRepository{db: db}
}

// Create creates a new medication
func (r *MedicationRepository) Create(ctx context.Context, med *domain.Medication) error {
	if med.ID == "" {
		med.ID = uuid.New().String()
	}

	query := `
		INSERT INTO medications (
			id, active_ingredient, concentration, form, minimum_stock, controlled_category
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	return r.db.QueryRowxContext(ctx, query,
		med.ID, med.ActiveIngredient, med.Concentration, med.Form,
		med.MinimumStock, med.ControlledCategory,
	).Scan(&med.CreatedAt, &med.UpdatedAt)
}

// GetByID gets a medication by ID, optionally inside a transaction
func (r *MedicationRepository) GetByID(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Medication, error) {
	if q == nil {
		q = r.db
	}

	var med domain.Medication
	query := `SELECT * FROM medications WHERE id = $1`
	if err := sqlx.GetContext(ctx, q, &med, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("medication")
		}
		return nil, err
	}
	return &med, nil
}

// ListByControlledCategory lists medications of a controlled-substance category
func (r *MedicationRepository) ListByControlledCategory(ctx context.Context, q sqlx.QueryerContext, category string) ([]*domain.Medication, error) {
	if q == nil {
		q = r.db
	}

	var meds []*domain.Medication
	query := `
		SELECT * FROM medications
		WHERE controlled_category = $1
		ORDER BY active_ingredient, concentration
	`
	if err := sqlx.SelectContext(ctx, q, &meds, query, category); err != nil {
		return nil, err
	}
	return meds, nil
}

// List lists all medications
func (r *MedicationRepository) List(ctx context.Context) ([]*domain.Medication, error) {
	var meds []*domain.Medication
	query := `SELECT * FROM medications ORDER BY active_ingredient, concentration`
	if err := r.db.SelectContext(ctx, &meds, query); err != nil {
		return nil, err
	}
	return meds, nil
}
