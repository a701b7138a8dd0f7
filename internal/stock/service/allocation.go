package service

import (
	"github.com/farmabase/farmabase-backend/internal/stock/domain"
)

// lotAllocation is one slice of quantity taken from a single lot
type lotAllocation struct {
	Lot      *domain.Lot
	Quantity int
}

// allocateByExpiry walks lots in ascending expiry order, taking from each until
// the requested quantity is covered. The caller passes lots already ordered and
// locked. If the lots under-cover the request the lot-level variant of
// InsufficientStockError is returned; this check is deliberately independent of
// the aggregate check above it, so ledger drift between the two tables surfaces
// instead of producing a negative lot.
func allocateByExpiry(medicationID string, lots []*domain.Lot, requested int) ([]lotAllocation, error) {
	available := 0
	for _, lot := range lots {
		available += lot.Quantity
	}
	if available < requested {
		return nil, &domain.InsufficientStockError{
			MedicationID: medicationID,
			Requested:    requested,
			Available:    available,
			Level:        domain.LevelLot,
		}
	}

	var allocations []lotAllocation
	remaining := requested
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		take := lot.Quantity
		if take > remaining {
			take = remaining
		}
		if take == 0 {
			continue
		}
		allocations = append(allocations, lotAllocation{Lot: lot, Quantity: take})
		remaining -= take
	}
	return allocations, nil
}

// allocateExplicit validates a caller-supplied per-lot split against the lots
// on hand: the split must sum exactly to the requested total and no slice may
// exceed its lot's remaining balance.
func allocateExplicit(medicationID string, lots []*domain.Lot, requested int, split map[string]int) ([]lotAllocation, error) {
	byID := make(map[string]*domain.Lot, len(lots))
	for _, lot := range lots {
		byID[lot.ID] = lot
	}

	total := 0
	var allocations []lotAllocation
	for _, lot := range lots {
		qty, ok := split[lot.ID]
		if !ok {
			continue
		}
		if qty <= 0 {
			return nil, &domain.LotAllocationMismatchError{
				MedicationID: medicationID,
				LotID:        lot.ID,
				Reason:       "split quantity must be positive",
			}
		}
		if qty > lot.Quantity {
			return nil, &domain.LotAllocationMismatchError{
				MedicationID: medicationID,
				LotID:        lot.ID,
				Requested:    qty,
				Allocated:    lot.Quantity,
				Reason:       "split quantity exceeds lot balance",
			}
		}
		allocations = append(allocations, lotAllocation{Lot: lot, Quantity: qty})
		total += qty
	}

	for lotID := range split {
		if _, ok := byID[lotID]; !ok {
			return nil, &domain.LotAllocationMismatchError{
				MedicationID: medicationID,
				LotID:        lotID,
				Reason:       "lot does not exist for this medication and establishment",
			}
		}
	}

	if total != requested {
		return nil, &domain.LotAllocationMismatchError{
			MedicationID: medicationID,
			Requested:    requested,
			Allocated:    total,
		}
	}
	return allocations, nil
}
