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

// RequisitionRepository handles requisition persistence. Headers and item
// request quantities are append-only; only the fulfillment counters and status
// mutate.
type RequisitionRepository struct {
	db *database.DB
}

// NewRequisitionRepository creates a new requisition repository
func NewRequisitionRepository(db *database.DB) *RequisitionRepository {
	return &RequisitionRepository{db: db}
}

// Create persists a requisition and its items
func (r *RequisitionRepository) Create(ctx context.Context, tx *sqlx.Tx, req *domain.Requisition) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	query := `
		INSERT INTO requisitions (id, solicitante_id, atendente_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	if err := tx.QueryRowxContext(ctx, query,
		req.ID, req.SolicitanteID, req.AtendenteID, req.Status,
	).Scan(&req.CreatedAt, &req.UpdatedAt); err != nil {
		return err
	}

	itemQuery := `
		INSERT INTO requisition_items (
			id, requisition_id, medication_id, quantidade_solicitada, quantidade_atendida
		) VALUES ($1, $2, $3, $4, $5)
	`
	for i := range req.Items {
		item := &req.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.RequisitionID = req.ID
		if _, err := tx.ExecContext(ctx, itemQuery,
			item.ID, item.RequisitionID, item.MedicationID,
			item.QuantidadeSolicitada, item.QuantidadeAtendida,
		); err != nil {
			return err
		}
	}
	return nil
}

// GetByID loads a requisition with its items
func (r *RequisitionRepository) GetByID(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Requisition, error) {
	if q == nil {
		q = r.db
	}

	var req domain.Requisition
	query := `SELECT * FROM requisitions WHERE id = $1`
	if err := sqlx.GetContext(ctx, q, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("requisition")
		}
		return nil, err
	}

	itemsQuery := `SELECT * FROM requisition_items WHERE requisition_id = $1 ORDER BY id`
	if err := sqlx.SelectContext(ctx, q, &req.Items, itemsQuery, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// GetByIDForUpdate loads a requisition with its items, locking the header row
// so concurrent fulfillments serialize.
func (r *RequisitionRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*domain.Requisition, error) {
	var req domain.Requisition
	query := `SELECT * FROM requisitions WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("requisition")
		}
		return nil, err
	}

	itemsQuery := `SELECT * FROM requisition_items WHERE requisition_id = $1 ORDER BY id`
	if err := tx.SelectContext(ctx, &req.Items, itemsQuery, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateItemAtendida sets the fulfilled counter for one item
func (r *RequisitionRepository) UpdateItemAtendida(ctx context.Context, tx *sqlx.Tx, itemID string, atendida int) error {
	query := `UPDATE requisition_items SET quantidade_atendida = $2 WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, itemID, atendida)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("requisition item")
	}
	return nil
}

// UpdateStatus sets the requisition status
func (r *RequisitionRepository) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, status domain.RequisitionStatus) error {
	query := `UPDATE requisitions SET status = $2, updated_at = NOW() WHERE id = $1`
	result, err := tx.ExecContext(ctx, query, id, status)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("requisition")
	}
	return nil
}

// ListBySolicitante lists requisition headers requested by an establishment
func (r *RequisitionRepository) ListBySolicitante(ctx context.Context, solicitanteID string, limit, offset int) ([]*domain.Requisition, error) {
	var reqs []*domain.Requisition
	query := `
		SELECT * FROM requisitions
		WHERE solicitante_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	if err := r.db.SelectContext(ctx, &reqs, query, solicitanteID, limit, offset); err != nil {
		return nil, err
	}
	return reqs, nil
}
