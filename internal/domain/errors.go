package domain

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrSerializationFailure  = errors.New("serialization failure")
	ErrConflict              = errors.New("conflict")
)

type Kind string

const (
	KindUnauthorized          Kind = "Unauthorized"
	KindValidation            Kind = "ValidationError"
	KindNotFound              Kind = "NotFound"
	KindInsufficientInventory Kind = "InsufficientInventory"
	KindTransient             Kind = "TransientFailure"
	KindInternal              Kind = "InternalFailure"
)

// KindOf classifies err into the error taxonomy exposed to callers.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientInventory):
		return KindInsufficientInventory
	case errors.Is(err, ErrSerializationFailure), errors.Is(err, ErrConflict):
		return KindTransient
	default:
		return KindInternal
	}
}

// ValidationError lists per-field problems. It matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
