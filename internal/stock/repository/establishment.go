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

// EstablishmentRepository handles establishment persistence
type EstablishmentRepository struct {
	db *database.DB
}

// NewEstablishmentRepository creates a new establishment repository
func NewEstablishmentRepository(db *database.DB) *EstablishmentRepository {
	return &EstablishmentRepository{db: db}
}

// Create creates a new establishment
func (r *EstablishmentRepository) Create(ctx context.Context, est *domain.Establishment) error {
	if est.ID == "" {
		est.ID = uuid.New().String()
	}

	query := `
		INSERT INTO establishments (id, name, type)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`

	return r.db.QueryRowxContext(ctx, query, est.ID, est.Name, est.Type).Scan(&est.CreatedAt)
}

// GetByID gets an establishment by ID, optionally inside a transaction
func (r *EstablishmentRepository) GetByID(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Establishment, error) {
	if q == nil {
		q = r.db
	}

	var est domain.Establishment
	query := `SELECT * FROM establishments WHERE id = $1`
	if err := sqlx.GetContext(ctx, q, &est, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("establishment")
		}
		return nil, err
	}
	return &est, nil
}

// List lists all establishments
func (r *EstablishmentRepository) List(ctx context.Context) ([]*domain.Establishment, error) {
	var ests []*domain.Establishment
	query := `SELECT * FROM establishments ORDER BY name`
	if err := r.db.SelectContext(ctx, &ests, query); err != nil {
		return nil, err
	}
	return ests, nil
}
