package shared

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates a missing entry, session, party or item.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInventoryViolation indicates a mutation would drive stock below zero.
	ErrInventoryViolation = errors.New("inventory violation")
	// ErrConflict indicates a concurrent writer won the race and the caller may retry.
	ErrConflict = errors.New("conflict")
)

// NotFoundError names the entity that could not be located.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NotFound builds a NotFoundError.
func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError carries the offending field and a reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InventoryViolationError describes the stock row that would have gone negative.
type InventoryViolationError struct {
	ItemID    int64
	Variety   string
	Date      time.Time
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InventoryViolationError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d variety %q on %s: available %s, requested %s",
		e.ItemID, e.Variety, FormatDate(e.Date), e.Available.String(), e.Requested.String())
}

// Is reports whether target is ErrInventoryViolation.
func (e *InventoryViolationError) Is(target error) bool {
	return target == ErrInventoryViolation
}

// UserSafeMessage returns the message that can be shown to API callers.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation), errors.Is(err, ErrInventoryViolation):
		return err.Error()
	case errors.Is(err, ErrConflict):
		return "concurrent update, please retry"
	default:
		return "internal error"
	}
}
