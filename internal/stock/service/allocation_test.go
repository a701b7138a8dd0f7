package service

import (
	"testing"
	"time"

	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lotFixture(id string, expiry time.Time, quantity int) *domain.Lot {
	return &domain.Lot{
		ID:         id,
		LotNumber:  "L-" + id,
		ExpiryDate: expiry,
		Quantity:   quantity,
	}
}

func expiryLots(quantities ...int) []*domain.Lot {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	lots := make([]*domain.Lot, 0, len(quantities))
	for i, qty := range quantities {
		lots = append(lots, lotFixture(
			string(rune('a'+i)),
			base.AddDate(0, i, 0),
			qty,
		))
	}
	return lots
}

func TestAllocateByExpiry_DepletesEarliestFirst(t *testing.T) {
	lots := expiryLots(10, 10, 10)

	allocations, err := allocateByExpiry("med-1", lots, 15)
	require.NoError(t, err)

	require.Len(t, allocations, 2)
	assert.Equal(t, "a", allocations[0].Lot.ID)
	assert.Equal(t, 10, allocations[0].Quantity)
	assert.Equal(t, "b", allocations[1].Lot.ID)
	assert.Equal(t, 5, allocations[1].Quantity)
}

func TestAllocateByExpiry_ExactCoverage(t *testing.T) {
	lots := expiryLots(10, 10, 10)

	allocations, err := allocateByExpiry("med-1", lots, 30)
	require.NoError(t, err)

	require.Len(t, allocations, 3)
	total := 0
	for _, a := range allocations {
		total += a.Quantity
	}
	assert.Equal(t, 30, total)
}

func TestAllocateByExpiry_SingleLot(t *testing.T) {
	lots := expiryLots(10, 10)

	allocations, err := allocateByExpiry("med-1", lots, 4)
	require.NoError(t, err)

	require.Len(t, allocations, 1)
	assert.Equal(t, "a", allocations[0].Lot.ID)
	assert.Equal(t, 4, allocations[0].Quantity)
}

func TestAllocateByExpiry_InsufficientLotStock(t *testing.T) {
	lots := expiryLots(10, 10, 10)

	_, err := allocateByExpiry("med-1", lots, 31)
	require.Error(t, err)

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "med-1", insufficient.MedicationID)
	assert.Equal(t, 31, insufficient.Requested)
	assert.Equal(t, 30, insufficient.Available)
	assert.Equal(t, domain.LevelLot, insufficient.Level)
}

func TestAllocateByExpiry_NoLots(t *testing.T) {
	_, err := allocateByExpiry("med-1", nil, 1)

	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 0, insufficient.Available)
	assert.Equal(t, domain.LevelLot, insufficient.Level)
}

func TestAllocateExplicit_ValidSplit(t *testing.T) {
	lots := expiryLots(10, 10, 10)

	allocations, err := allocateExplicit("med-1", lots, 12, map[string]int{
		"a": 2,
		"c": 10,
	})
	require.NoError(t, err)

	require.Len(t, allocations, 2)
	assert.Equal(t, "a", allocations[0].Lot.ID)
	assert.Equal(t, 2, allocations[0].Quantity)
	assert.Equal(t, "c", allocations[1].Lot.ID)
	assert.Equal(t, 10, allocations[1].Quantity)
}

func TestAllocateExplicit_SumMismatch(t *testing.T) {
	lots := expiryLots(10, 10)

	_, err := allocateExplicit("med-1", lots, 15, map[string]int{"a": 10})

	var mismatch *domain.LotAllocationMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 15, mismatch.Requested)
	assert.Equal(t, 10, mismatch.Allocated)
}

func TestAllocateExplicit_OverdrawsLot(t *testing.T) {
	lots := expiryLots(10, 10)

	_, err := allocateExplicit("med-1", lots, 11, map[string]int{"a": 11})

	var mismatch *domain.LotAllocationMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "a", mismatch.LotID)
}

func TestAllocateExplicit_UnknownLot(t *testing.T) {
	lots := expiryLots(10)

	_, err := allocateExplicit("med-1", lots, 5, map[string]int{"ghost": 5})

	var mismatch *domain.LotAllocationMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "ghost", mismatch.LotID)
}

func TestAllocateExplicit_NonPositiveQuantity(t *testing.T) {
	lots := expiryLots(10)

	_, err := allocateExplicit("med-1", lots, 0, map[string]int{"a": 0})

	var mismatch *domain.LotAllocationMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "a", mismatch.LotID)
}
