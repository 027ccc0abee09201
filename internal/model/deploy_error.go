package model

import (
	"errors"
	"fmt"
)

// DeployErrorKind is the category of a failed worker deployment.
type DeployErrorKind string

const (
	// DeployErrorKindRejected means the backend refused the deployment.
	DeployErrorKindRejected DeployErrorKind = "rejected"
	// DeployErrorKindTimeout means the deployment did not answer in time.
	DeployErrorKindTimeout DeployErrorKind = "timeout"
	// DeployErrorKindCannotConnect means the worker or the backend could not be reached.
	DeployErrorKindCannotConnect DeployErrorKind = "cannot-connect"
	// DeployErrorKindOther is any other failure.
	DeployErrorKindOther DeployErrorKind = "other"
)

// DeployError is the error returned by deployment backends when a single
// worker deployment fails.
type DeployError struct {
	Kind   DeployErrorKind
	Detail string
	Err    error
}

// NewDeployError returns a new deploy error of the given kind.
func NewDeployError(kind DeployErrorKind, detail string, err error) *DeployError {
	return &DeployError{Kind: kind, Detail: detail, Err: err}
}

func (e *DeployError) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *DeployError) Unwrap() error { return e.Err }

// DeployErrorKindOf returns the kind of err. Errors that are not a
// DeployError are of DeployErrorKindOther.
func DeployErrorKindOf(err error) DeployErrorKind {
	var derr *DeployError
	if errors.As(err, &derr) {
		switch derr.Kind {
		case DeployErrorKindRejected, DeployErrorKindTimeout, DeployErrorKindCannotConnect:
			return derr.Kind
		}
	}
	return DeployErrorKindOther
}
