package repository

import (
	"context"
	"time"

	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/farmabase/farmabase-backend/pkg/database"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// LedgerRepository reads movement and dispensation history for book replay.
// It never writes.
type LedgerRepository struct {
	db *database.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

type movementEventRow struct {
	Date           time.Time              `db:"document_date"`
	DocumentNumber string                 `db:"document_number"`
	MedicationID   string                 `db:"medication_id"`
	Subtype        domain.MovementSubtype `db:"subtype"`
	Justification  string                 `db:"justification"`
	Quantity       int                    `db:"quantity"`
	CreatedAt      time.Time              `db:"created_at"`
}

type dispensationEventRow struct {
	Date         time.Time `db:"dispensed_at"`
	ReferenceDoc string    `db:"reference_document"`
	MedicationID string    `db:"medication_id"`
	PatientName  string    `db:"patient_name"`
	Prescriber   string    `db:"prescriber"`
	Quantity     int       `db:"quantity"`
	CreatedAt    time.Time `db:"created_at"`
}

// MovementEvents collects movement lines for the given medications dated
// strictly before until, oldest first.
func (r *LedgerRepository) MovementEvents(ctx context.Context, q sqlx.QueryerContext, medicationIDs []string, until time.Time) ([]domain.LedgerEvent, error) {
	if q == nil {
		q = r.db
	}

	var rows []movementEventRow
	query := `
		SELECT m.document_date, m.document_number, mi.medication_id, m.subtype,
		       m.justification, mi.quantity, m.created_at
		FROM movement_items mi
		JOIN movements m ON m.id = mi.movement_id
		WHERE mi.medication_id = ANY($1) AND m.document_date < $2
		ORDER BY m.document_date, m.created_at, mi.id
	`
	if err := sqlx.SelectContext(ctx, q, &rows, query, pq.Array(medicationIDs), until); err != nil {
		return nil, err
	}

	events := make([]domain.LedgerEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, domain.LedgerEvent{
			Kind:           domain.EventMovement,
			Date:           row.Date,
			DocumentNumber: row.DocumentNumber,
			MedicationID:   row.MedicationID,
			Subtype:        row.Subtype,
			Detail:         row.Justification,
			Quantity:       row.Quantity,
		})
	}
	return events, nil
}

// DispensationEvents collects dispensed lines for the given medications dated
// strictly before until, oldest first.
func (r *LedgerRepository) DispensationEvents(ctx context.Context, q sqlx.QueryerContext, medicationIDs []string, until time.Time) ([]domain.LedgerEvent, error) {
	if q == nil {
		q = r.db
	}

	var rows []dispensationEventRow
	query := `
		SELECT d.dispensed_at, d.reference_document, di.medication_id,
		       d.patient_name, d.prescriber, di.quantity, d.created_at
		FROM dispensation_items di
		JOIN dispensations d ON d.id = di.dispensation_id
		WHERE di.medication_id = ANY($1) AND d.dispensed_at < $2
		ORDER BY d.dispensed_at, d.created_at, di.id
	`
	if err := sqlx.SelectContext(ctx, q, &rows, query, pq.Array(medicationIDs), until); err != nil {
		return nil, err
	}

	events := make([]domain.LedgerEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, domain.LedgerEvent{
			Kind:           domain.EventDispensation,
			Date:           row.Date,
			DocumentNumber: row.ReferenceDoc,
			MedicationID:   row.MedicationID,
			Subtype:        domain.SubtypeDispensacao,
			Counterparty:   row.PatientName,
			Detail:         row.Prescriber,
			Quantity:       row.Quantity,
		})
	}
	return events, nil
}
