package events

import (
	"context"

	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/farmabase/farmabase-backend/pkg/logger"
	"github.com/farmabase/farmabase-backend/pkg/messaging"
)

// StockEventPublisher publishes stock-related events. All methods are nil-safe
// and fire-and-forget: publishing happens after the transaction commits, and a
// broker failure is logged, never surfaced to the caller.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishMovementRecorded publishes a movement recorded event
func (p *StockEventPublisher) PublishMovementRecorded(ctx context.Context, m *domain.Movement) {
	if p == nil {
		return
	}

	ctx = messaging.WithCorrelationID(ctx, m.ID)
	data := messaging.MovementRecordedEvent{
		MovementID:      m.ID,
		DocumentNumber:  m.DocumentNumber,
		Subtype:         string(m.Subtype),
		EstablishmentID: m.EstablishmentID,
		ItemCount:       len(m.Items),
	}

	if err := p.publisher.Publish(ctx, messaging.EventMovementRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("movement_id", m.ID).Msg("failed to publish movement recorded event")
	}
}

// PublishDispensationRecorded publishes a dispensation recorded event
func (p *StockEventPublisher) PublishDispensationRecorded(ctx context.Context, d *domain.Dispensation) {
	if p == nil {
		return
	}

	ctx = messaging.WithCorrelationID(ctx, d.ID)
	data := messaging.DispensationRecordedEvent{
		DispensationID:  d.ID,
		PatientCPF:      d.PatientCPF,
		EstablishmentID: d.EstablishmentID,
		ItemCount:       len(d.Items),
	}

	if err := p.publisher.Publish(ctx, messaging.EventDispensationRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("dispensation_id", d.ID).Msg("failed to publish dispensation recorded event")
	}
}

// PublishLowStock publishes a low stock alert event
func (p *StockEventPublisher) PublishLowStock(ctx context.Context, establishmentID, medicationID string, quantity, minimumStock int) {
	if p == nil {
		return
	}

	ctx = messaging.WithCorrelationID(ctx, medicationID)
	data := messaging.LowStockEvent{
		MedicationID:    medicationID,
		EstablishmentID: establishmentID,
		Quantity:        quantity,
		MinimumStock:    minimumStock,
	}

	if err := p.publisher.Publish(ctx, messaging.EventLowStock, data); err != nil {
		p.logger.Error().Err(err).Str("medication_id", medicationID).Msg("failed to publish low stock event")
	}
}

// PublishRequisitionCreated publishes a requisition created event
func (p *StockEventPublisher) PublishRequisitionCreated(ctx context.Context, r *domain.Requisition) {
	if p == nil {
		return
	}

	ctx = messaging.WithCorrelationID(ctx, r.ID)
	data := messaging.RequisitionCreatedEvent{
		RequisitionID: r.ID,
		SolicitanteID: r.SolicitanteID,
		AtendenteID:   r.AtendenteID,
		ItemCount:     len(r.Items),
	}

	if err := p.publisher.Publish(ctx, messaging.EventRequisitionCreated, data); err != nil {
		p.logger.Error().Err(err).Str("requisition_id", r.ID).Msg("failed to publish requisition created event")
	}
}

// PublishRequisitionStatusChanged publishes a requisition status change event
func (p *StockEventPublisher) PublishRequisitionStatusChanged(ctx context.Context, requisitionID string, oldStatus, newStatus domain.RequisitionStatus) {
	if p == nil {
		return
	}

	ctx = messaging.WithCorrelationID(ctx, requisitionID)
	data := messaging.RequisitionStatusChangedEvent{
		RequisitionID: requisitionID,
		OldStatus:     string(oldStatus),
		NewStatus:     string(newStatus),
	}

	if err := p.publisher.Publish(ctx, messaging.EventRequisitionStatusChanged, data); err != nil {
		p.logger.Error().Err(err).Str("requisition_id", requisitionID).Msg("failed to publish requisition status changed event")
	}
}
