package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementSubtype is the declared reason for a stock movement
type MovementSubtype string

const (
	// Receiving subtypes
	SubtypeCompra          MovementSubtype = "COMPRA"
	SubtypeDoacao          MovementSubtype = "DOACAO"
	SubtypeTransferenciaIn MovementSubtype = "TRANSFERENCIA_ENTRADA"
	SubtypeAjusteEntrada   MovementSubtype = "AJUSTE_ENTRADA"

	// Loss subtypes
	SubtypePerda      MovementSubtype = "PERDA"
	SubtypeVencimento MovementSubtype = "VENCIMENTO"
	SubtypeAvaria     MovementSubtype = "AVARIA"

	// Outflow subtypes
	SubtypeTransferenciaOut MovementSubtype = "TRANSFERENCIA_SAIDA"
	SubtypeAjusteSaida      MovementSubtype = "AJUSTE_SAIDA"
	SubtypeDispensacao      MovementSubtype = "DISPENSACAO"
)

// MovementClass buckets a subtype for the regulatory book columns
type MovementClass int

const (
	ClassInflow MovementClass = iota
	ClassLoss
	ClassOutflow
)

// movementClasses is the classification table for the regulatory book. Every
// subtype added above must be added here; Classify falls back to outflow for
// anything it does not know.
var movementClasses = map[MovementSubtype]MovementClass{
	SubtypeCompra:          ClassInflow,
	SubtypeDoacao:          ClassInflow,
	SubtypeTransferenciaIn: ClassInflow,
	SubtypeAjusteEntrada:   ClassInflow,

	SubtypePerda:      ClassLoss,
	SubtypeVencimento: ClassLoss,
	SubtypeAvaria:     ClassLoss,

	SubtypeTransferenciaOut: ClassOutflow,
	SubtypeAjusteSaida:      ClassOutflow,
	SubtypeDispensacao:      ClassOutflow,
}

// Classify maps a movement subtype to its book bucket. The mapping is total:
// unknown subtypes classify as outflow.
func Classify(subtype MovementSubtype) MovementClass {
	if class, ok := movementClasses[subtype]; ok {
		return class
	}
	return ClassOutflow
}

// IsEntrada reports whether the subtype increases stock
func (s MovementSubtype) IsEntrada() bool {
	return Classify(s) == ClassInflow
}

// ValidSubtypes lists every known movement subtype
func ValidSubtypes() []MovementSubtype {
	subtypes := make([]MovementSubtype, 0, len(movementClasses))
	for s := range movementClasses {
		subtypes = append(subtypes, s)
	}
	return subtypes
}

// Movement is an immutable stock-change record at establishment granularity
type Movement struct {
	ID              string          `db:"id" json:"id"`
	Subtype         MovementSubtype `db:"subtype" json:"subtype"`
	DocumentNumber  string          `db:"document_number" json:"document_number"`
	DocumentDate    time.Time       `db:"document_date" json:"document_date"`
	ReceiptDate     *time.Time      `db:"receipt_date" json:"receipt_date,omitempty"`
	TotalValue      decimal.Decimal `db:"total_value" json:"total_value"`
	Justification   string          `db:"justification" json:"justification"`
	EstablishmentID string          `db:"establishment_id" json:"establishment_id"`
	RequisitionID   *string         `db:"requisition_id" json:"requisition_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`

	Items []MovementItem `db:"-" json:"items,omitempty"`
}

// MovementItem is one line of a movement, bound to the single lot it touched.
// Lot number, expiry and manufacturer are copied at write time so the audit
// trail survives later lot mutation.
type MovementItem struct {
	ID           string          `db:"id" json:"id"`
	MovementID   string          `db:"movement_id" json:"movement_id"`
	MedicationID string          `db:"medication_id" json:"medication_id"`
	LotID        string          `db:"lot_id" json:"lot_id"`
	LotNumber    string          `db:"lot_number" json:"lot_number"`
	LotExpiry    time.Time       `db:"lot_expiry" json:"lot_expiry"`
	Manufacturer string          `db:"manufacturer" json:"manufacturer"`
	Quantity     int             `db:"quantity" json:"quantity"`
	UnitValue    decimal.Decimal `db:"unit_value" json:"unit_value"`
}
