package orders

import (
	"errors"
	"fmt"
	"github.com/ariefcatur/go-order-fulfillment/internal/inventory"
	"strings"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInsufficientStock  = inventory.ErrInsufficientStock
	ErrNoHandlerAvailable = errors.New("no handler available")
	ErrPartialBatch       = errors.New("batch partially applied")
	ErrBatchRejected      = errors.New("batch rejected")
	ErrInternal           = errors.New("internal error")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type ConflictError struct {
	Entity  string
	ID      string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Message)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

type ItemFailure struct {
	OrderItemID string
	Err         error
}

// BatchResult is the outcome of a return or cancellation batch.
type BatchResult struct {
	OrderID     string        `json:"order_id"`
	OrderStatus Status        `json:"order_status"`
	Accepted    []string      `json:"accepted"`
	Failures    []ItemFailure `json:"-"`
}

// BatchError reports per-item failures. With at least one accepted item it
// matches ErrPartialBatch and the accepted items are committed; otherwise it
// matches ErrBatchRejected and nothing is written.
type BatchError struct {
	Result BatchResult
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Result.Failures))
	for _, f := range e.Result.Failures {
		parts = append(parts, f.OrderItemID+": "+f.Err.Error())
	}
	kind := "partially applied"
	if len(e.Result.Accepted) == 0 {
		kind = "rejected"
	}
	return fmt.Sprintf("batch on order %s %s (%s)", e.Result.OrderID, kind, strings.Join(parts, "; "))
}

func (e *BatchError) Is(target error) bool {
	if len(e.Result.Accepted) == 0 {
		return target == ErrBatchRejected
	}
	return target == ErrPartialBatch
}

var taxonomy = []error{
	ErrValidation, ErrNotFound, ErrConflict, ErrInsufficientStock,
	ErrNoHandlerAvailable, ErrPartialBatch, ErrBatchRejected, ErrInternal,
}

// classify leaves taxonomy errors alone and marks anything else internal.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}
