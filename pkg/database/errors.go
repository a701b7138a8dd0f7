package database

import (
	"strings"

	"github.com/farmabase/farmabase-backend/pkg/errors"
	"github.com/lib/pq"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, optionally restricted to a named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return false
	}
	if constraint == "" {
		return true
	}
	return strings.Contains(pqErr.Constraint, constraint)
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.Validation(map[string]string{
			"quantity": "must not be negative",
		})

	case strings.Contains(constraint, "establishment_type_valid"):
		return errors.Validation(map[string]string{
			"type": "must be one of: WAREHOUSE, PHARMACY_UNIT, OTHER",
		})

	case strings.Contains(constraint, "requisition_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: PENDENTE, EM_SEPARACAO, ATENDIDA, ATENDIDA_PARCIALMENTE, CANCELADA",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "document_number"):
		return "a movement with this document number already exists"
	case strings.Contains(constraint, "aggregate_stock"):
		return "a stock record for this medication and establishment already exists"
	default:
		return "a record with these values already exists"
	}
}
