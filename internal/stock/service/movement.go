package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/farmabase/farmabase-backend/internal/stock/events"
	"github.com/farmabase/farmabase-backend/internal/stock/repository"
	"github.com/farmabase/farmabase-backend/pkg/database"
	"github.com/farmabase/farmabase-backend/pkg/errors"
	"github.com/farmabase/farmabase-backend/pkg/logger"
	"github.com/farmabase/farmabase-backend/pkg/validation"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// EntradaItem is one received line. Each line becomes its own lot.
type EntradaItem struct {
	MedicationID string          `json:"medication_id" validate:"required,uuid"`
	LotNumber    string          `json:"lot_number" validate:"required"`
	ExpiryDate   time.Time       `json:"expiry_date" validate:"required"`
	Manufacturer string          `json:"manufacturer"`
	Quantity     int             `json:"quantity" validate:"required,gt=0"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

// EntradaRequest records a receiving movement
type EntradaRequest struct {
	Subtype         domain.MovementSubtype `json:"subtype" validate:"required"`
	DocumentNumber  string                 `json:"document_number" validate:"required"`
	DocumentDate    time.Time              `json:"document_date" validate:"required"`
	ReceiptDate     *time.Time             `json:"receipt_date,omitempty"`
	EstablishmentID string                 `json:"establishment_id" validate:"required,uuid"`
	Observation     string                 `json:"observation"`
	Items           []EntradaItem          `json:"items" validate:"required,min=1,dive"`
}

// SaidaItem is one requested outflow line. Duplicate medication lines in a
// request are tolerated and aggregated before allocation.
type SaidaItem struct {
	MedicationID      string           `json:"medication_id" validate:"required,uuid"`
	Quantity          int              `json:"quantity" validate:"required,gt=0"`
	UnitValueOverride *decimal.Decimal `json:"unit_value_override,omitempty"`
}

// SaidaRequest records an outflow or loss movement
type SaidaRequest struct {
	Subtype         domain.MovementSubtype `json:"subtype" validate:"required"`
	DocumentNumber  string                 `json:"document_number,omitempty"`
	DocumentDate    time.Time              `json:"document_date" validate:"required"`
	EstablishmentID string                 `json:"establishment_id" validate:"required,uuid"`
	Justification   string                 `json:"justification"`
	RequisitionID   *string                `json:"requisition_id,omitempty"`
	Items           []SaidaItem            `json:"items" validate:"required,min=1,dive"`
}

// LowStockWarning flags an aggregate that dropped below the medication minimum.
// Advisory only, never blocks the movement.
type LowStockWarning struct {
	MedicationID string `json:"medication_id"`
	Quantity     int    `json:"quantity"`
	MinimumStock int    `json:"minimum_stock"`
}

// SaidaResult is the outcome of a recorded outflow
type SaidaResult struct {
	Movement *domain.Movement  `json:"movement"`
	LowStock []LowStockWarning `json:"low_stock,omitempty"`
}

// MovementService is the movement engine: it records receipts and outflows,
// keeping the aggregate record and the lots consistent inside one transaction.
type MovementService struct {
	db           *database.DB
	stockRepo    *repository.StockRepository
	movementRepo *repository.MovementRepository
	medRepo      *repository.MedicationRepository
	publisher    *events.StockEventPublisher
	logger       *logger.Logger
}

// NewMovementService creates a new movement service
func NewMovementService(
	db *database.DB,
	stockRepo *repository.StockRepository,
	movementRepo *repository.MovementRepository,
	medRepo *repository.MedicationRepository,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *MovementService {
	return &MovementService{
		db:           db,
		stockRepo:    stockRepo,
		movementRepo: movementRepo,
		medRepo:      medRepo,
		publisher:    publisher,
		logger:       log,
	}
}

// RecordEntrada records a receiving movement: one new lot per line, aggregate
// stock incremented, movement and items persisted atomically.
func (s *MovementService) RecordEntrada(ctx context.Context, req *EntradaRequest) (*domain.Movement, error) {
	if err := validation.Validate(req); err != nil {
		return nil, err
	}
	if domain.Classify(req.Subtype) != domain.ClassInflow {
		return nil, errors.BadRequest(fmt.Sprintf("subtype %s is not a receiving subtype", req.Subtype))
	}

	total := decimal.Zero
	for _, item := range req.Items {
		total = total.Add(item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	movement := &domain.Movement{
		Subtype:         req.Subtype,
		DocumentNumber:  req.DocumentNumber,
		DocumentDate:    req.DocumentDate,
		ReceiptDate:     req.ReceiptDate,
		TotalValue:      total,
		Justification:   req.Observation,
		EstablishmentID: req.EstablishmentID,
	}

	err := s.db.RepeatableRead(ctx, func(tx *sqlx.Tx) error {
		exists, err := s.movementRepo.DocumentExists(ctx, tx, req.DocumentNumber)
		if err != nil {
			return err
		}
		if exists {
			return &domain.DuplicateDocumentError{DocumentNumber: req.DocumentNumber}
		}

		if err := s.movementRepo.Create(ctx, tx, movement); err != nil {
			return err
		}

		for _, item := range req.Items {
			if _, err := s.medRepo.GetByID(ctx, tx, item.MedicationID); err != nil {
				return err
			}

			lot := &domain.Lot{
				MedicationID:     item.MedicationID,
				EstablishmentID:  req.EstablishmentID,
				LotNumber:        item.LotNumber,
				ExpiryDate:       item.ExpiryDate,
				Quantity:         item.Quantity,
				UnitCost:         item.UnitCost,
				Manufacturer:     item.Manufacturer,
				OriginMovementID: movement.ID,
			}
			if err := s.stockRepo.CreateLot(ctx, tx, lot); err != nil {
				return err
			}

			if err := s.stockRepo.AddToAggregate(ctx, tx, item.MedicationID, req.EstablishmentID, item.Quantity); err != nil {
				return err
			}

			movementItem := &domain.MovementItem{
				MovementID:   movement.ID,
				MedicationID: item.MedicationID,
				LotID:        lot.ID,
				LotNumber:    lot.LotNumber,
				LotExpiry:    lot.ExpiryDate,
				Manufacturer: lot.Manufacturer,
				Quantity:     item.Quantity,
				UnitValue:    item.UnitCost,
			}
			if err := s.movementRepo.CreateItem(ctx, tx, movementItem); err != nil {
				return err
			}
			movement.Items = append(movement.Items, *movementItem)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("movement_id", movement.ID).
		Str("document_number", movement.DocumentNumber).
		Str("establishment_id", movement.EstablishmentID).
		Int("items", len(movement.Items)).
		Msg("entrada recorded")

	s.publisher.PublishMovementRecorded(ctx, movement)

	return movement, nil
}

// RecordSaida records an outflow movement. Duplicate medication lines are
// aggregated, availability is verified at aggregate level and independently at
// lot level, and consumption follows ascending expiry order.
func (s *MovementService) RecordSaida(ctx context.Context, req *SaidaRequest) (*SaidaResult, error) {
	if err := validation.Validate(req); err != nil {
		return nil, err
	}
	if domain.Classify(req.Subtype) == domain.ClassInflow {
		return nil, errors.BadRequest(fmt.Sprintf("subtype %s is not an outflow subtype", req.Subtype))
	}
	if beforeToday(req.DocumentDate) {
		return nil, &domain.InvalidDateError{Date: req.DocumentDate}
	}
	if strings.TrimSpace(req.Justification) == "" {
		return nil, &domain.MissingJustificationError{}
	}

	lines := aggregateLines(req.Items)

	documentNumber := req.DocumentNumber
	if documentNumber == "" {
		documentNumber = generateDocumentNumber("SAI")
	}

	movement := &domain.Movement{
		Subtype:         req.Subtype,
		DocumentNumber:  documentNumber,
		DocumentDate:    req.DocumentDate,
		Justification:   req.Justification,
		EstablishmentID: req.EstablishmentID,
		RequisitionID:   req.RequisitionID,
	}

	var warnings []LowStockWarning

	err := s.db.RepeatableRead(ctx, func(tx *sqlx.Tx) error {
		exists, err := s.movementRepo.DocumentExists(ctx, tx, documentNumber)
		if err != nil {
			return err
		}
		if exists {
			return &domain.DuplicateDocumentError{DocumentNumber: documentNumber}
		}

		type plannedLine struct {
			line        saidaLine
			med         *domain.Medication
			allocations []lotAllocation
			remaining   int
		}

		total := decimal.Zero
		planned := make([]plannedLine, 0, len(lines))
		for _, line := range lines {
			med, err := s.medRepo.GetByID(ctx, tx, line.MedicationID)
			if err != nil {
				return err
			}

			available, err := s.stockRepo.AggregateQuantityForUpdate(ctx, tx, line.MedicationID, req.EstablishmentID)
			if err != nil {
				return err
			}
			if available < line.Quantity {
				return &domain.InsufficientStockError{
					MedicationID: line.MedicationID,
					Requested:    line.Quantity,
					Available:    available,
					Level:        domain.LevelAggregate,
				}
			}

			lots, err := s.stockRepo.AvailableLotsForUpdate(ctx, tx, line.MedicationID, req.EstablishmentID)
			if err != nil {
				return err
			}
			allocations, err := allocateByExpiry(line.MedicationID, lots, line.Quantity)
			if err != nil {
				return err
			}

			for _, alloc := range allocations {
				unitValue := alloc.Lot.UnitCost
				if line.UnitValueOverride != nil {
					unitValue = *line.UnitValueOverride
				}
				total = total.Add(unitValue.Mul(decimal.NewFromInt(int64(alloc.Quantity))))
			}

			planned = append(planned, plannedLine{
				line:        line,
				med:         med,
				allocations: allocations,
				remaining:   available - line.Quantity,
			})
		}

		movement.TotalValue = total
		if err := s.movementRepo.Create(ctx, tx, movement); err != nil {
			return err
		}

		for _, plan := range planned {
			for _, alloc := range plan.allocations {
				if err := s.stockRepo.DecrementLot(ctx, tx, alloc.Lot.ID, alloc.Quantity); err != nil {
					return err
				}

				unitValue := alloc.Lot.UnitCost
				if plan.line.UnitValueOverride != nil {
					unitValue = *plan.line.UnitValueOverride
				}
				item := &domain.MovementItem{
					MovementID:   movement.ID,
					MedicationID: plan.line.MedicationID,
					LotID:        alloc.Lot.ID,
					LotNumber:    alloc.Lot.LotNumber,
					LotExpiry:    alloc.Lot.ExpiryDate,
					Manufacturer: alloc.Lot.Manufacturer,
					Quantity:     alloc.Quantity,
					UnitValue:    unitValue,
				}
				if err := s.movementRepo.CreateItem(ctx, tx, item); err != nil {
					return err
				}
				movement.Items = append(movement.Items, *item)
			}

			if err := s.stockRepo.AddToAggregate(ctx, tx, plan.line.MedicationID, req.EstablishmentID, -plan.line.Quantity); err != nil {
				return err
			}

			if plan.remaining < plan.med.MinimumStock {
				warnings = append(warnings, LowStockWarning{
					MedicationID: plan.line.MedicationID,
					Quantity:     plan.remaining,
					MinimumStock: plan.med.MinimumStock,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("movement_id", movement.ID).
		Str("document_number", movement.DocumentNumber).
		Str("establishment_id", movement.EstablishmentID).
		Int("items", len(movement.Items)).
		Msg("saida recorded")

	s.publisher.PublishMovementRecorded(ctx, movement)
	for _, w := range warnings {
		s.publisher.PublishLowStock(ctx, req.EstablishmentID, w.MedicationID, w.Quantity, w.MinimumStock)
	}

	return &SaidaResult{Movement: movement, LowStock: warnings}, nil
}

// ExpiringLots lists non-empty lots at an establishment expiring within days
func (s *MovementService) ExpiringLots(ctx context.Context, establishmentID string, withinDays int) ([]*domain.Lot, error) {
	return s.stockRepo.ExpiringLots(ctx, establishmentID, withinDays)
}

// StockPosition is the reconciliation view of one medication at one
// establishment: the aggregate record next to the lot-level sum it must equal.
type StockPosition struct {
	MedicationID      string        `json:"medication_id"`
	EstablishmentID   string        `json:"establishment_id"`
	AggregateQuantity int           `json:"aggregate_quantity"`
	LotQuantity       int           `json:"lot_quantity"`
	Consistent        bool          `json:"consistent"`
	Lots              []*domain.Lot `json:"lots"`
}

// StockPosition reports the aggregate quantity, the lot-level total and the
// lots themselves for a medication at an establishment. A position where the
// two quantities disagree signals out-of-band writes to one of the tables.
func (s *MovementService) StockPosition(ctx context.Context, medicationID, establishmentID string) (*StockPosition, error) {
	aggregate, err := s.stockRepo.AggregateQuantity(ctx, nil, medicationID, establishmentID)
	if err != nil {
		return nil, err
	}
	lotTotal, err := s.stockRepo.LotTotal(ctx, nil, medicationID, establishmentID)
	if err != nil {
		return nil, err
	}
	lots, err := s.stockRepo.ListLots(ctx, medicationID, establishmentID)
	if err != nil {
		return nil, err
	}

	return &StockPosition{
		MedicationID:      medicationID,
		EstablishmentID:   establishmentID,
		AggregateQuantity: aggregate,
		LotQuantity:       lotTotal,
		Consistent:        aggregate == lotTotal,
		Lots:              lots,
	}, nil
}

type saidaLine struct {
	MedicationID      string
	Quantity          int
	UnitValueOverride *decimal.Decimal
}

// aggregateLines collapses duplicate medication lines into one effective
// quantity each, preserving first-seen order. The first override wins.
func aggregateLines(items []SaidaItem) []saidaLine {
	index := make(map[string]int, len(items))
	var lines []saidaLine
	for _, item := range items {
		if i, ok := index[item.MedicationID]; ok {
			lines[i].Quantity += item.Quantity
			if lines[i].UnitValueOverride == nil {
				lines[i].UnitValueOverride = item.UnitValueOverride
			}
			continue
		}
		index[item.MedicationID] = len(lines)
		lines = append(lines, saidaLine{
			MedicationID:      item.MedicationID,
			Quantity:          item.Quantity,
			UnitValueOverride: item.UnitValueOverride,
		})
	}
	return lines
}

// beforeToday reports whether t falls on a calendar day before today (UTC)
func beforeToday(t time.Time) bool {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	d := t.UTC()
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return day.Before(today)
}

// generateDocumentNumber builds a unique document reference when the caller
// supplies none, e.g. SAI-20240131-a1b2c3d4.
func generateDocumentNumber(prefix string) string {
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().UTC().Format("20060102"), uuid.New().String()[:8])
}
