package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when no row matches the requested id.
var ErrNotFound = errors.New("not found")

// Kind classifies an OrderError. The HTTP layer maps kinds to status codes.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindNoFieldsProvided Kind = "no_fields_provided"
	KindCreationFailed   Kind = "creation_failed"
	KindUpdateFailed     Kind = "update_failed"
	KindDeletionFailed   Kind = "deletion_failed"
	KindRetrievalFailed  Kind = "retrieval_failed"
)

// OrderError is the only error type the order service returns.
// Wrapped store failures keep their message text but not their identity.
type OrderError struct {
	Kind    Kind
	OrderID int64
	Message string
}

func (e *OrderError) Error() string { return e.Message }

// Is matches another *OrderError of the same kind, so callers can write
// errors.Is(err, &domain.OrderError{Kind: domain.KindNotFound}).
func (e *OrderError) Is(target error) bool {
	t, ok := target.(*OrderError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NotFound(id int64) *OrderError {
	return &OrderError{
		Kind:    KindNotFound,
		OrderID: id,
		Message: fmt.Sprintf("Order with ID %d not found", id),
	}
}

func NoFieldsProvided() *OrderError {
	return &OrderError{
		Kind:    KindNoFieldsProvided,
		Message: "No fields provided for update",
	}
}

func CreationFailed(cause error) *OrderError {
	return &OrderError{
		Kind:    KindCreationFailed,
		Message: "Failed to create order: " + causeText(cause),
	}
}

func UpdateFailed(id int64, cause error) *OrderError {
	return &OrderError{
		Kind:    KindUpdateFailed,
		OrderID: id,
		Message: "Failed to update order: " + causeText(cause),
	}
}

func DeletionFailed(id int64, cause error) *OrderError {
	return &OrderError{
		Kind:    KindDeletionFailed,
		OrderID: id,
		Message: "Failed to delete order: " + causeText(cause),
	}
}

func RetrievalFailed(cause error) *OrderError {
	return &OrderError{
		Kind:    KindRetrievalFailed,
		Message: "Failed to retrieve orders: " + causeText(cause),
	}
}

// KindOf reports the kind of err, or "" when err is not an *OrderError.
func KindOf(err error) Kind {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}

func causeText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
