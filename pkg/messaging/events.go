package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Stock events
	EventMovementRecorded     = "stock.movement.recorded"
	EventDispensationRecorded = "stock.dispensation.recorded"
	EventLowStock             = "stock.level.low"

	// Requisition events
	EventRequisitionCreated       = "stock.requisition.created"
	EventRequisitionStatusChanged = "stock.requisition.status_changed"
)

// Exchange names
const (
	ExchangeStockEvents = "stock.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Stock Events

// MovementRecordedEvent is published after a stock movement commits
type MovementRecordedEvent struct {
	MovementID      string `json:"movement_id"`
	DocumentNumber  string `json:"document_number"`
	Subtype         string `json:"subtype"`
	EstablishmentID string `json:"establishment_id"`
	ItemCount       int    `json:"item_count"`
}

// DispensationRecordedEvent is published after a dispensation commits
type DispensationRecordedEvent struct {
	DispensationID  string `json:"dispensation_id"`
	PatientCPF      string `json:"patient_cpf"`
	EstablishmentID string `json:"establishment_id"`
	ItemCount       int    `json:"item_count"`
}

// LowStockEvent is published when an outflow drops a medication below its minimum
type LowStockEvent struct {
	MedicationID    string `json:"medication_id"`
	EstablishmentID string `json:"establishment_id"`
	Quantity        int    `json:"quantity"`
	MinimumStock    int    `json:"minimum_stock"`
}

// RequisitionCreatedEvent is published when a requisition is opened
type RequisitionCreatedEvent struct {
	RequisitionID string `json:"requisition_id"`
	SolicitanteID string `json:"solicitante_id"`
	AtendenteID   string `json:"atendente_id"`
	ItemCount     int    `json:"item_count"`
}

// RequisitionStatusChangedEvent is published when a requisition changes status
type RequisitionStatusChangedEvent struct {
	RequisitionID string `json:"requisition_id"`
	OldStatus     string `json:"old_status"`
	NewStatus     string `json:"new_status"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
