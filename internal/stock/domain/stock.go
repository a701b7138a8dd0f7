package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AggregateStock is the on-hand quantity for a medication at an establishment.
// Invariant: Quantity equals the sum of Lot.Quantity over all lots for the pair.
type AggregateStock struct {
	MedicationID    string    `db:"medication_id" json:"medication_id"`
	EstablishmentID string    `db:"establishment_id" json:"establishment_id"`
	Quantity        int       `db:"quantity" json:"quantity"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Lot is a batch of medication received together. Lots are created only by a
// receiving movement, consumed by outflows, and retained at zero quantity for
// the audit trail.
type Lot struct {
	ID               string          `db:"id" json:"id"`
	MedicationID     string          `db:"medication_id" json:"medication_id"`
	EstablishmentID  string          `db:"establishment_id" json:"establishment_id"`
	LotNumber        string          `db:"lot_number" json:"lot_number"`
	ExpiryDate       time.Time       `db:"expiry_date" json:"expiry_date"`
	Quantity         int             `db:"quantity" json:"quantity"`
	UnitCost         decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	Manufacturer     string          `db:"manufacturer" json:"manufacturer"`
	OriginMovementID string          `db:"origin_movement_id" json:"origin_movement_id"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}
