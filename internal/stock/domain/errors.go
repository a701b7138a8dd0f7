package domain

import (
	"fmt"
	"time"
)

// StockLevel distinguishes the two independent availability checks
type StockLevel string

const (
	LevelAggregate StockLevel = "aggregate"
	LevelLot       StockLevel = "lot"
)

// DuplicateDocumentError is returned when a movement document number is reused
type DuplicateDocumentError struct {
	DocumentNumber string
}

func (e *DuplicateDocumentError) Error() string {
	return fmt.Sprintf("document number %q is already used by another movement", e.DocumentNumber)
}

// InvalidDateError is returned when a movement is dated before the current date
type InvalidDateError struct {
	Date time.Time
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("movement date %s is earlier than the current date", e.Date.Format("2006-01-02"))
}

// MissingJustificationError is returned when an outflow carries no justification
type MissingJustificationError struct{}

func (e *MissingJustificationError) Error() string {
	return "outflow movements require a justification or observation"
}

// InsufficientStockError is returned when requested quantity exceeds availability.
// Level tells which check failed: the aggregate record, or the lot-level sum
// verified independently beneath it.
type InsufficientStockError struct {
	MedicationID string
	Requested    int
	Available    int
	Level        StockLevel
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient %s stock for medication %s: requested %d, available %d",
		e.Level, e.MedicationID, e.Requested, e.Available)
}

// LotAllocationMismatchError is returned when an explicit per-lot split does not
// add up to the requested total or overdraws a lot
type LotAllocationMismatchError struct {
	MedicationID string
	LotID        string
	Requested    int
	Allocated    int
	Reason       string
}

func (e *LotAllocationMismatchError) Error() string {
	if e.LotID != "" {
		return fmt.Sprintf("lot allocation mismatch for medication %s, lot %s: %s",
			e.MedicationID, e.LotID, e.Reason)
	}
	return fmt.Sprintf("lot allocation mismatch for medication %s: split sums to %d, requested %d",
		e.MedicationID, e.Allocated, e.Requested)
}

// InvalidAttendantError is returned when a requisition names a non-warehouse attendant
type InvalidAttendantError struct {
	EstablishmentID string
	Type            EstablishmentType
}

func (e *InvalidAttendantError) Error() string {
	return fmt.Sprintf("establishment %s cannot attend requisitions: type is %s, must be %s",
		e.EstablishmentID, e.Type, EstablishmentWarehouse)
}

// DuplicateItemError is returned when a requisition repeats a medication line
type DuplicateItemError struct {
	MedicationID string
}

func (e *DuplicateItemError) Error() string {
	return fmt.Sprintf("medication %s appears more than once in the requisition", e.MedicationID)
}

// OverFulfillmentError is returned when a fulfillment exceeds the requested quantity
type OverFulfillmentError struct {
	ItemID     string
	Attempted  int
	Solicitada int
}

func (e *OverFulfillmentError) Error() string {
	return fmt.Sprintf("requisition item %s: attempted quantity %d exceeds requested %d",
		e.ItemID, e.Attempted, e.Solicitada)
}

// RegressionError is returned when a fulfillment would reduce a recorded quantity
type RegressionError struct {
	ItemID    string
	Current   int
	Attempted int
}

func (e *RegressionError) Error() string {
	return fmt.Sprintf("requisition item %s: attempted quantity %d is below the recorded %d, fulfillment is monotonic",
		e.ItemID, e.Attempted, e.Current)
}

// NoOpFulfillmentError is returned when a fulfillment changes nothing
type NoOpFulfillmentError struct {
	RequisitionID string
}

func (e *NoOpFulfillmentError) Error() string {
	return fmt.Sprintf("requisition %s: fulfillment must increase at least one line", e.RequisitionID)
}

// InvalidStateTransitionError is returned on an illegal requisition status change
type InvalidStateTransitionError struct {
	Current   RequisitionStatus
	Attempted RequisitionStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot move requisition from %s to %s", e.Current, e.Attempted)
}
