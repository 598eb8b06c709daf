// Package wbrerr defines the structured error taxonomy shared across the
// build pipeline. Errors carry a kind, the config or data path they concern,
// and a human readable detail.
package wbrerr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error.
type Kind string

// Error kinds.
const (
	KindConfig     Kind = "ConfigError"
	KindData       Kind = "DataError"
	KindConnection Kind = "ConnectionError"
	KindEvaluation Kind = "EvaluationError"
	KindAnnotation Kind = "AnnotationWarning"
	KindInternal   Kind = "InternalError"
)

// Error is a structured pipeline error.
type Error struct {
	Kind   Kind   `json:"kind"`
	Path   string `json:"path"`
	Detail string `json:"detail"`

	wrapped error
}

// New builds an error of the given kind. Path points at the config key or
// data location the error concerns, e.g. "metrics.PageViews.aggf".
func New(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and path to an underlying error.
func Wrap(err error, kind Kind, path string) *Error {
	return &Error{Kind: kind, Path: path, Detail: err.Error(), wrapped: err}
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}

	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Path, e.Detail)
}

// Unwrap exposes the wrapped error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// KindOf extracts the kind from an error chain, defaulting to InternalError.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

// List is a collection of structured errors gathered during validation.
type List []*Error

func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", l[0].Error(), len(l)-1)
	}
}

// OrNil returns the list as an error, or nil when empty.
func (l List) OrNil() error {
	if len(l) == 0 {
		return nil
	}

	return l
}
