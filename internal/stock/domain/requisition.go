package domain

import "time"

// RequisitionStatus is the fulfillment state of an inter-establishment request
type RequisitionStatus string

const (
	StatusPendente             RequisitionStatus = "PENDENTE"
	StatusEmSeparacao          RequisitionStatus = "EM_SEPARACAO"
	StatusAtendida             RequisitionStatus = "ATENDIDA"
	StatusAtendidaParcialmente RequisitionStatus = "ATENDIDA_PARCIALMENTE"
	StatusCancelada            RequisitionStatus = "CANCELADA"
)

// CanCancel reports whether a requisition in this status may still be cancelled
func (s RequisitionStatus) CanCancel() bool {
	return s == StatusPendente || s == StatusEmSeparacao
}

// Requisition is an inter-establishment medication request. Fulfillment is an
// independent quantity ledger: attending a requisition never moves stock by
// itself, the warehouse records a separate outflow referencing it.
type Requisition struct {
	ID             string            `db:"id" json:"id"`
	SolicitanteID  string            `db:"solicitante_id" json:"solicitante_id"`
	AtendenteID    string            `db:"atendente_id" json:"atendente_id"`
	Status         RequisitionStatus `db:"status" json:"status"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`

	Items []RequisitionItem `db:"-" json:"items,omitempty"`
}

// RequisitionItem tracks requested versus fulfilled quantity for one medication.
// QuantidadeSolicitada is fixed at creation; QuantidadeAtendida only ever grows
// and never exceeds it.
type RequisitionItem struct {
	ID                   string `db:"id" json:"id"`
	RequisitionID        string `db:"requisition_id" json:"requisition_id"`
	MedicationID         string `db:"medication_id" json:"medication_id"`
	QuantidadeSolicitada int    `db:"quantidade_solicitada" json:"quantidade_solicitada"`
	QuantidadeAtendida   int    `db:"quantidade_atendida" json:"quantidade_atendida"`
}

// Satisfied reports whether the line is fully fulfilled
func (i *RequisitionItem) Satisfied() bool {
	return i.QuantidadeAtendida >= i.QuantidadeSolicitada
}

// RecomputeStatus derives the fulfillment status from the item counters.
// Returns the current status unchanged when nothing has been fulfilled yet.
func RecomputeStatus(current RequisitionStatus, items []RequisitionItem) RequisitionStatus {
	total := 0
	satisfied := 0
	fulfilled := 0
	for _, item := range items {
		total++
		if item.Satisfied() {
			satisfied++
		}
		fulfilled += item.QuantidadeAtendida
	}

	switch {
	case total > 0 && satisfied == total:
		return StatusAtendida
	case fulfilled > 0:
		return StatusAtendidaParcialmente
	default:
		return current
	}
}
