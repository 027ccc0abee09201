package lib

import (
	"errors"

	"github.com/slok/wdeploy/internal/model"
)

var (
	// ErrNotFound is returned when a resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when the input is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrRunInProgress is returned when a run is started while another one is active.
	ErrRunInProgress = errors.New("run in progress")
)

// mapError maps internal sentinel errors to the public ones, keeping the
// original message.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		return joinErrors(err, ErrNotFound)
	case errors.Is(err, model.ErrAlreadyExists):
		return joinErrors(err, ErrAlreadyExists)
	case errors.Is(err, model.ErrNotValid):
		return joinErrors(err, ErrNotValid)
	case errors.Is(err, model.ErrRunInProgress):
		return joinErrors(err, ErrRunInProgress)
	default:
		return err
	}
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
