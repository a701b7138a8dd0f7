package service

import (
	"context"
	"fmt"

	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/farmabase/farmabase-backend/internal/stock/events"
	"github.com/farmabase/farmabase-backend/internal/stock/repository"
	"github.com/farmabase/farmabase-backend/pkg/database"
	"github.com/farmabase/farmabase-backend/pkg/errors"
	"github.com/farmabase/farmabase-backend/pkg/logger"
	"github.com/farmabase/farmabase-backend/pkg/validation"
	"github.com/jmoiron/sqlx"
)

// RequisitionItemRequest is one requested medication line
type RequisitionItemRequest struct {
	MedicationID         string `json:"medication_id" validate:"required,uuid"`
	QuantidadeSolicitada int    `json:"quantidade_solicitada" validate:"required,gt=0"`
}

// CreateRequisitionRequest opens an inter-establishment request
type CreateRequisitionRequest struct {
	SolicitanteID string                   `json:"solicitante_id" validate:"required,uuid"`
	AtendenteID   string                   `json:"atendente_id" validate:"required,uuid"`
	Items         []RequisitionItemRequest `json:"items" validate:"required,min=1,dive"`
}

// Fulfillment sets the new cumulative fulfilled quantity for one item.
// Quantities only move forward: the new value must be at least the recorded
// one and at most the requested one.
type Fulfillment struct {
	ItemID             string `json:"item_id" validate:"required,uuid"`
	QuantidadeAtendida int    `json:"quantidade_atendida" validate:"min=0"`
}

// AtenderRequest records fulfillment progress on a requisition
type AtenderRequest struct {
	RequisitionID string        `json:"requisition_id" validate:"required,uuid"`
	Fulfillments  []Fulfillment `json:"fulfillments" validate:"required,min=1,dive"`
}

// RequisitionService manages the requisition lifecycle. Fulfillment here is
// bookkeeping only: stock leaves the warehouse through a separate outflow
// movement that references the requisition.
type RequisitionService struct {
	db        *database.DB
	reqRepo   *repository.RequisitionRepository
	estRepo   *repository.EstablishmentRepository
	medRepo   *repository.MedicationRepository
	publisher *events.StockEventPublisher
	logger    *logger.Logger
}

// NewRequisitionService creates a new requisition service
func NewRequisitionService(
	db *database.DB,
	reqRepo *repository.RequisitionRepository,
	estRepo *repository.EstablishmentRepository,
	medRepo *repository.MedicationRepository,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *RequisitionService {
	return &RequisitionService{
		db:        db,
		reqRepo:   reqRepo,
		estRepo:   estRepo,
		medRepo:   medRepo,
		publisher: publisher,
		logger:    log,
	}
}

// Create opens a requisition in PENDENTE. The attending establishment must be
// a warehouse and no medication may appear on more than one line.
func (s *RequisitionService) Create(ctx context.Context, req *CreateRequisitionRequest) (*domain.Requisition, error) {
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		if _, dup := seen[item.MedicationID]; dup {
			return nil, &domain.DuplicateItemError{MedicationID: item.MedicationID}
		}
		seen[item.MedicationID] = struct{}{}
	}

	requisition := &domain.Requisition{
		SolicitanteID: req.SolicitanteID,
		AtendenteID:   req.AtendenteID,
		Status:        domain.StatusPendente,
	}
	for _, item := range req.Items {
		requisition.Items = append(requisition.Items, domain.RequisitionItem{
			MedicationID:         item.MedicationID,
			QuantidadeSolicitada: item.QuantidadeSolicitada,
		})
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		atendente, err := s.estRepo.GetByID(ctx, tx, req.AtendenteID)
		if err != nil {
			return err
		}
		if atendente.Type != domain.EstablishmentWarehouse {
			return &domain.InvalidAttendantError{
				EstablishmentID: atendente.ID,
				Type:            atendente.Type,
			}
		}
		if _, err := s.estRepo.GetByID(ctx, tx, req.SolicitanteID); err != nil {
			return err
		}
		for _, item := range req.Items {
			if _, err := s.medRepo.GetByID(ctx, tx, item.MedicationID); err != nil {
				return err
			}
		}

		return s.reqRepo.Create(ctx, tx, requisition)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("requisition_id", requisition.ID).
		Str("solicitante_id", requisition.SolicitanteID).
		Str("atendente_id", requisition.AtendenteID).
		Msg("requisition created")

	s.publisher.PublishRequisitionCreated(ctx, requisition)

	return requisition, nil
}

// Atender records fulfillment progress. Each fulfillment sets the cumulative
// quantity for one line; at least one line must actually increase. The status
// is re-derived from the counters afterwards.
func (s *RequisitionService) Atender(ctx context.Context, req *AtenderRequest) (*domain.Requisition, error) {
	if err := validation.Validate(req); err != nil {
		return nil, err
	}

	var requisition *domain.Requisition
	var oldStatus domain.RequisitionStatus

	err := s.db.RepeatableRead(ctx, func(tx *sqlx.Tx) error {
		var err error
		requisition, err = s.reqRepo.GetByIDForUpdate(ctx, tx, req.RequisitionID)
		if err != nil {
			return err
		}
		oldStatus = requisition.Status

		switch oldStatus {
		case domain.StatusPendente, domain.StatusEmSeparacao, domain.StatusAtendidaParcialmente:
		default:
			return &domain.InvalidStateTransitionError{
				Current:   oldStatus,
				Attempted: domain.StatusAtendidaParcialmente,
			}
		}

		itemsByID := make(map[string]*domain.RequisitionItem, len(requisition.Items))
		for i := range requisition.Items {
			itemsByID[requisition.Items[i].ID] = &requisition.Items[i]
		}

		changed := false
		for _, f := range req.Fulfillments {
			item, ok := itemsByID[f.ItemID]
			if !ok {
				return errors.BadRequest(fmt.Sprintf("item %s does not belong to requisition %s", f.ItemID, requisition.ID))
			}
			if f.QuantidadeAtendida > item.QuantidadeSolicitada {
				return &domain.OverFulfillmentError{
					ItemID:     item.ID,
					Attempted:  f.QuantidadeAtendida,
					Solicitada: item.QuantidadeSolicitada,
				}
			}
			if f.QuantidadeAtendida < item.QuantidadeAtendida {
				return &domain.RegressionError{
					ItemID:    item.ID,
					Current:   item.QuantidadeAtendida,
					Attempted: f.QuantidadeAtendida,
				}
			}
			if f.QuantidadeAtendida == item.QuantidadeAtendida {
				continue
			}

			item.QuantidadeAtendida = f.QuantidadeAtendida
			if err := s.reqRepo.UpdateItemAtendida(ctx, tx, item.ID, f.QuantidadeAtendida); err != nil {
				return err
			}
			changed = true
		}
		if !changed {
			return &domain.NoOpFulfillmentError{RequisitionID: requisition.ID}
		}

		requisition.Status = domain.RecomputeStatus(requisition.Status, requisition.Items)

		if requisition.Status != oldStatus {
			return s.reqRepo.UpdateStatus(ctx, tx, requisition.ID, requisition.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("requisition_id", requisition.ID).
		Str("status", string(requisition.Status)).
		Msg("requisition fulfillment recorded")

	if requisition.Status != oldStatus {
		s.publisher.PublishRequisitionStatusChanged(ctx, requisition.ID, oldStatus, requisition.Status)
	}

	return requisition, nil
}

// IniciarSeparacao moves a pending requisition into picking. The warehouse
// calls this when it starts assembling the order.
func (s *RequisitionService) IniciarSeparacao(ctx context.Context, id string) (*domain.Requisition, error) {
	var requisition *domain.Requisition

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		requisition, err = s.reqRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		if requisition.Status != domain.StatusPendente {
			return &domain.InvalidStateTransitionError{
				Current:   requisition.Status,
				Attempted: domain.StatusEmSeparacao,
			}
		}

		requisition.Status = domain.StatusEmSeparacao
		return s.reqRepo.UpdateStatus(ctx, tx, id, domain.StatusEmSeparacao)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishRequisitionStatusChanged(ctx, requisition.ID, domain.StatusPendente, domain.StatusEmSeparacao)

	return requisition, nil
}

// Cancelar cancels a requisition still in PENDENTE or EM_SEPARACAO
func (s *RequisitionService) Cancelar(ctx context.Context, id string) (*domain.Requisition, error) {
	var requisition *domain.Requisition
	var oldStatus domain.RequisitionStatus

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		requisition, err = s.reqRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		oldStatus = requisition.Status

		if !oldStatus.CanCancel() {
			return &domain.InvalidStateTransitionError{
				Current:   oldStatus,
				Attempted: domain.StatusCancelada,
			}
		}

		requisition.Status = domain.StatusCancelada
		return s.reqRepo.UpdateStatus(ctx, tx, id, domain.StatusCancelada)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("requisition_id", requisition.ID).
		Msg("requisition cancelled")

	s.publisher.PublishRequisitionStatusChanged(ctx, requisition.ID, oldStatus, domain.StatusCancelada)

	return requisition, nil
}

// Get loads a requisition with its items
func (s *RequisitionService) Get(ctx context.Context, id string) (*domain.Requisition, error) {
	return s.reqRepo.GetByID(ctx, nil, id)
}

// ListBySolicitante lists requisitions opened by an establishment
func (s *RequisitionService) ListBySolicitante(ctx context.Context, solicitanteID string, limit, offset int) ([]*domain.Requisition, error) {
	return s.reqRepo.ListBySolicitante(ctx, solicitanteID, limit, offset)
}
