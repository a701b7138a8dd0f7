package domain

import "time"

// Dispensation is a stock outflow attributed to a named patient
type Dispensation struct {
	ID                string    `db:"id" json:"id"`
	PatientName       string    `db:"patient_name" json:"patient_name"`
	PatientCPF        string    `db:"patient_cpf" json:"patient_cpf"`
	Prescriber        string    `db:"prescriber" json:"prescriber"`
	ReferenceDocument string    `db:"reference_document" json:"reference_document"`
	EstablishmentID   string    `db:"establishment_id" json:"establishment_id"`
	DispensedAt       time.Time `db:"dispensed_at" json:"dispensed_at"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`

	Items []DispensationItem `db:"-" json:"items,omitempty"`
}

// DispensationItem is one dispensed line with its lot snapshot
type DispensationItem struct {
	ID             string    `db:"id" json:"id"`
	DispensationID string    `db:"dispensation_id" json:"dispensation_id"`
	MedicationID   string    `db:"medication_id" json:"medication_id"`
	LotID          string    `db:"lot_id" json:"lot_id"`
	LotNumber      string    `db:"lot_number" json:"lot_number"`
	LotExpiry      time.Time `db:"lot_expiry" json:"lot_expiry"`
	Manufacturer   string    `db:"manufacturer" json:"manufacturer"`
	Quantity       int       `db:"quantity" json:"quantity"`
}
