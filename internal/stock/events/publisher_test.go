package events_test

import (
	"context"
	"testing"

	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/farmabase/farmabase-backend/internal/stock/events"
)

// Services publish fire-and-forget after commit; a nil publisher (no broker
// configured, unit tests) must be a no-op, never a panic.
func TestNilPublisherIsNoOp(t *testing.T) {
	ctx := context.Background()
	var p *events.StockEventPublisher

	p.PublishMovementRecorded(ctx, &domain.Movement{ID: "m-1"})
	p.PublishDispensationRecorded(ctx, &domain.Dispensation{ID: "d-1"})
	p.PublishLowStock(ctx, "est-1", "med-1", 3, 10)
	p.PublishRequisitionCreated(ctx, &domain.Requisition{ID: "r-1"})
	p.PublishRequisitionStatusChanged(ctx, "r-1", domain.StatusPendente, domain.StatusEmSeparacao)
}
