package service

import (
	"context"
	"time"

	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/farmabase/farmabase-backend/internal/stock/events"
	"github.com/farmabase/farmabase-backend/internal/stock/repository"
	"github.com/farmabase/farmabase-backend/pkg/database"
	"github.com/farmabase/farmabase-backend/pkg/logger"
	"github.com/farmabase/farmabase-backend/pkg/validation"
	"github.com/jmoiron/sqlx"
)

// earlyRefillDays is the window for the repeat-withdrawal advisory. A patient
// picking up the same medication again inside this window gets flagged, never
// blocked.
const earlyRefillDays = 30

// DispensationItemRequest is one dispensed line. When LotSplit is empty the
// engine consumes lots in ascending expiry order; otherwise the split is
// honored exactly after validation.
type DispensationItemRequest struct {
	MedicationID string         `json:"medication_id" validate:"required,uuid"`
	Quantity     int            `json:"quantity" validate:"required,gt=0"`
	LotSplit     map[string]int `json:"lot_split,omitempty"`
}

// DispensationRequest records a patient-facing withdrawal
type DispensationRequest struct {
	PatientName       string                    `json:"patient_name" validate:"required"`
	PatientCPF        string                    `json:"patient_cpf" validate:"required"`
	Prescriber        string                    `json:"prescriber"`
	ReferenceDocument string                    `json:"reference_document"`
	EstablishmentID   string                    `json:"establishment_id" validate:"required,uuid"`
	Items             []DispensationItemRequest `json:"items" validate:"required,min=1,dive"`
}

// RepeatWithdrawalWarning flags a dispensation of the same medication to the
// same patient within the advisory window.
type RepeatWithdrawalWarning struct {
	MedicationID    string    `json:"medication_id"`
	LastDispensedAt time.Time `json:"last_dispensed_at"`
	DaysSince       int       `json:"days_since"`
}

// DispensationResult is the outcome of a recorded dispensation
type DispensationResult struct {
	Dispensation     *domain.Dispensation      `json:"dispensation"`
	RepeatWithdrawal []RepeatWithdrawalWarning `json:"repeat_withdrawal,omitempty"`
	LowStock         []LowStockWarning         `json:"low_stock,omitempty"`
}

// DispensationService records patient withdrawals, consuming lots and the
// aggregate record in the same transaction as the dispensation itself.
type DispensationService struct {
	db        *database.DB
	stockRepo *repository.StockRepository
	dispRepo  *repository.DispensationRepository
	medRepo   *repository.MedicationRepository
	publisher *events.StockEventPublisher
	logger    *logger.Logger
}

// NewDispensationService creates a new dispensation service
func NewDispensationService(
	db *database.DB,
	stockRepo *repository.StockRepository,
	dispRepo *repository.DispensationRepository,
	medRepo *repository.MedicationRepository,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *DispensationService {
	return &DispensationService{
		db:        db,
		stockRepo: stockRepo,
		dispRepo:  dispRepo,
		medRepo:   medRepo,
		publisher: publisher,
		logger:    log,
	}
}

// Dispense records a dispensation. Availability is checked at aggregate level
// and again at lot level; each consumed lot slice becomes one item carrying a
// snapshot of the lot identity at dispensation time.
func (s *DispensationService) Dispense(ctx context.Context, req *DispensationRequest) (*DispensationResult, error) {
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	dispensation := &domain.Dispensation{
		PatientName:       req.PatientName,
		PatientCPF:        req.PatientCPF,
		Prescriber:        req.Prescriber,
		ReferenceDocument: req.ReferenceDocument,
		EstablishmentID:   req.EstablishmentID,
	}

	var repeatWarnings []RepeatWithdrawalWarning
	var lowStock []LowStockWarning

	err := s.db.RepeatableRead(ctx, func(tx *sqlx.Tx) error {
		type plannedItem struct {
			req         DispensationItemRequest
			med         *domain.Medication
			allocations []lotAllocation
			remaining   int
			lastAt      *time.Time
		}

		planned := make([]plannedItem, 0, len(req.Items))
		for _, item := range req.Items {
			med, err := s.medRepo.GetByID(ctx, tx, item.MedicationID)
			if err != nil {
				return err
			}

			available, err := s.stockRepo.AggregateQuantityForUpdate(ctx, tx, item.MedicationID, req.EstablishmentID)
			if err != nil {
				return err
			}
			if available < item.Quantity {
				return &domain.InsufficientStockError{
					MedicationID: item.MedicationID,
					Requested:    item.Quantity,
					Available:    available,
					Level:        domain.LevelAggregate,
				}
			}

			lots, err := s.stockRepo.AvailableLotsForUpdate(ctx, tx, item.MedicationID, req.EstablishmentID)
			if err != nil {
				return err
			}

			var allocations []lotAllocation
			if len(item.LotSplit) > 0 {
				allocations, err = allocateExplicit(item.MedicationID, lots, item.Quantity, item.LotSplit)
			} else {
				allocations, err = allocateByExpiry(item.MedicationID, lots, item.Quantity)
			}
			if err != nil {
				return err
			}

			lastAt, err := s.dispRepo.LastDispensedAt(ctx, tx, req.PatientCPF, item.MedicationID, req.EstablishmentID)
			if err != nil {
				return err
			}

			planned = append(planned, plannedItem{
				req:         item,
				med:         med,
				allocations: allocations,
				remaining:   available - item.Quantity,
				lastAt:      lastAt,
			})
		}

		if err := s.dispRepo.Create(ctx, tx, dispensation); err != nil {
			return err
		}

		for _, plan := range planned {
			for _, alloc := range plan.allocations {
				if err := s.stockRepo.DecrementLot(ctx, tx, alloc.Lot.ID, alloc.Quantity); err != nil {
					return err
				}

				item := &domain.DispensationItem{
					DispensationID: dispensation.ID,
					MedicationID:   plan.req.MedicationID,
					LotID:          alloc.Lot.ID,
					LotNumber:      alloc.Lot.LotNumber,
					LotExpiry:      alloc.Lot.ExpiryDate,
					Manufacturer:   alloc.Lot.Manufacturer,
					Quantity:       alloc.Quantity,
				}
				if err := s.dispRepo.CreateItem(ctx, tx, item); err != nil {
					return err
				}
				dispensation.Items = append(dispensation.Items, *item)
			}

			if err := s.stockRepo.AddToAggregate(ctx, tx, plan.req.MedicationID, req.EstablishmentID, -plan.req.Quantity); err != nil {
				return err
			}

			if plan.lastAt != nil {
				days := int(dispensation.DispensedAt.Sub(*plan.lastAt).Hours() / 24)
				if days < earlyRefillDays {
					repeatWarnings = append(repeatWarnings, RepeatWithdrawalWarning{
						MedicationID:    plan.req.MedicationID,
						LastDispensedAt: *plan.lastAt,
						DaysSince:       days,
					})
				}
			}

			if plan.remaining < plan.med.MinimumStock {
				lowStock = append(lowStock, LowStockWarning{
					MedicationID: plan.req.MedicationID,
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
		Str("dispensation_id", dispensation.ID).
		Str("establishment_id", dispensation.EstablishmentID).
		Int("items", len(dispensation.Items)).
		Msg("dispensation recorded")

	s.publisher.PublishDispensationRecorded(ctx, dispensation)
	for _, w := range lowStock {
		s.publisher.PublishLowStock(ctx, req.EstablishmentID, w.MedicationID, w.Quantity, w.MinimumStock)
	}

	return &DispensationResult{
		Dispensation:     dispensation,
		RepeatWithdrawal: repeatWarnings,
		LowStock:         lowStock,
	}, nil
}

// Get returns a dispensation with its items
func (s *DispensationService) Get(ctx context.Context, id string) (*domain.Dispensation, error) {
	return s.dispRepo.GetByID(ctx, id)
}

// DaysSinceLastWithdrawal reports how long ago a patient last received a
// medication at an establishment, regardless of how long that is. Returns nil
// when the patient never received it there.
func (s *DispensationService) DaysSinceLastWithdrawal(ctx context.Context, patientCPF, medicationID, establishmentID string) (*RepeatWithdrawalWarning, error) {
	lastAt, err := s.dispRepo.LastDispensedAt(ctx, nil, patientCPF, medicationID, establishmentID)
	if err != nil {
		return nil, err
	}
	if lastAt == nil {
		return nil, nil
	}

	return &RepeatWithdrawalWarning{
		MedicationID:    medicationID,
		LastDispensedAt: *lastAt,
		DaysSince:       int(time.Since(*lastAt).Hours() / 24),
	}, nil
}
