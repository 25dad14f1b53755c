// Package apperr defines the structured error taxonomy shared by the
// settlement and inventory paths. Every error names the table or ingredient
// it concerns so operators can see what needs reconciliation.
package apperr

import (
	"errors"
	"fmt"
)

// ErrConcurrencyConflict signals a lost compare-and-swap or a serialization
// failure on a single document. Callers retry a bounded number of times
// before surfacing SettlementFailed / ConsumptionFailed.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ValidationError rejects a request before any mutation happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing table, product, ingredient or vendor.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

// InvalidIndexError reports an order-line index outside the live order.
type InvalidIndexError struct {
	TableID int64
	Index   int
	Length  int
}

func (e *InvalidIndexError) Error() string {
	return fmt.Sprintf("invalid line index %d for table %d (have %d lines)", e.Index, e.TableID, e.Length)
}

// UnsupportedUnitError is returned by the unit normalizer for any unit
// outside the known set.
type UnsupportedUnitError struct {
	Unit string
}

func (e *UnsupportedUnitError) Error() string {
	return fmt.Sprintf("unsupported unit: %q", e.Unit)
}

// AmbiguousIngredientError reports duplicate inventory rows for one
// (branch, ingredient) pair. Never auto-resolved.
type AmbiguousIngredientError struct {
	BranchCode     string
	IngredientName string
	Matches        int
}

func (e *AmbiguousIngredientError) Error() string {
	return fmt.Sprintf("ambiguous ingredient %q in branch %s: %d inventory rows match",
		e.IngredientName, e.BranchCode, e.Matches)
}

// SettlementFailedError is surfaced after settlement retries are exhausted.
type SettlementFailedError struct {
	TableID  int64
	Attempts int
	Err      error
}

func (e *SettlementFailedError) Error() string {
	return fmt.Sprintf("settlement failed for table %d after %d attempts: %v", e.TableID, e.Attempts, e.Err)
}

func (e *SettlementFailedError) Unwrap() error { return e.Err }

// ConsumptionFailedError reports one ingredient whose deduction could not
// be applied for an already-committed settlement.
type ConsumptionFailedError struct {
	SettlementID   string
	IngredientName string
	Err            error
}

func (e *ConsumptionFailedError) Error() string {
	return fmt.Sprintf("consumption failed for ingredient %q (settlement %s): %v",
		e.IngredientName, e.SettlementID, e.Err)
}

func (e *ConsumptionFailedError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a pre-mutation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a missing-entity error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
