package domain

import "time"

// LedgerEventKind tells which history table an event came from
type LedgerEventKind string

const (
	EventMovement     LedgerEventKind = "movement"
	EventDispensation LedgerEventKind = "dispensation"
)

// LedgerEvent is a normalized history event used to rebuild regulatory books.
// Movement events carry the movement subtype; dispensation events classify as
// outflow with the patient as counterparty.
type LedgerEvent struct {
	Kind           LedgerEventKind
	Date           time.Time
	DocumentNumber string
	MedicationID   string
	Subtype        MovementSubtype
	Counterparty   string
	Detail         string // prescriber for dispensations, justification for movements
	Quantity       int
}

// LedgerRow is one line of a reconstructed controlled-substance book
type LedgerRow struct {
	Date           time.Time `json:"date"`
	DocumentNumber string    `json:"document_number"`
	Counterparty   string    `json:"counterparty"`
	Detail         string    `json:"detail"`
	QtyIn          int       `json:"qty_in"`
	QtyOut         int       `json:"qty_out"`
	QtyLoss        int       `json:"qty_loss"`
	RunningBalance int       `json:"running_balance"`
}

// LedgerBook is the replay output: an opening balance and the in-range rows
type LedgerBook struct {
	Category       string      `json:"category"`
	From           time.Time   `json:"from"`
	To             time.Time   `json:"to"`
	OpeningBalance int         `json:"opening_balance"`
	Rows           []LedgerRow `json:"rows"`
}
