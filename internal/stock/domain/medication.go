package domain

import "time"

// EstablishmentType identifies the role of an establishment in the network
type EstablishmentType string

const (
	EstablishmentWarehouse    EstablishmentType = "WAREHOUSE"
	EstablishmentPharmacyUnit EstablishmentType = "PHARMACY_UNIT"
	EstablishmentOther        EstablishmentType = "OTHER"
)

// Medication represents a medication in the catalog
type Medication struct {
	ID                 string    `db:"id" json:"id"`
	ActiveIngredient   string    `db:"active_ingredient" json:"active_ingredient"`
	Concentration      string    `db:"concentration" json:"concentration"`
	Form               string    `db:"form" json:"form"`
	MinimumStock       int       `db:"minimum_stock" json:"minimum_stock"`
	ControlledCategory *string   `db:"controlled_category" json:"controlled_category,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// IsControlled reports whether the medication belongs to a controlled-substance category
func (m *Medication) IsControlled() bool {
	return m.ControlledCategory != nil && *m.ControlledCategory != ""
}

// Establishment represents a warehouse or dispensing unit
type Establishment struct {
	ID        string            `db:"id" json:"id"`
	Name      string            `db:"name" json:"name"`
	Type      EstablishmentType `db:"type" json:"type"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}
