package room

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// BackendKind classifies a persistence failure.
type BackendKind string

const (
	KindConstraintViolation BackendKind = "constraint_violation"
	KindConnectivity        BackendKind = "connectivity"
)

// BackendError is a failed persistence call. It is surfaced to the caller as is and never retried.
type BackendError struct {
	Op   string
	Kind BackendKind
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ConstraintViolation wraps err as a rejected write.
func ConstraintViolation(op string, err error) *BackendError {
	return &BackendError{Op: op, Kind: KindConstraintViolation, Err: err}
}

// Connectivity wraps err as an unreachable or failing backend.
func Connectivity(op string, err error) *BackendError {
	return &BackendError{Op: op, Kind: KindConnectivity, Err: err}
}

// asBackendError keeps an existing *BackendError and treats anything else as connectivity.
func asBackendError(op string, err error) error {
	var be *BackendError
	if errors.As(err, &be) || errors.Is(err, ErrRoomNotFound) {
		return err
	}
	return Connectivity(op, err)
}
