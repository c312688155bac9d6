package models

import (
	"errors"
	"fmt"
)

// ErrorType identifies the category of error that occurred.
type ErrorType string

const (
	// Catalog level, fatal to the whole run
	ErrManifest ErrorType = "manifest_error"
	ErrConfig   ErrorType = "config_error"

	// Dataset level, fatal to one dataset only
	ErrFetch      ErrorType = "fetch_error"
	ErrGeneration ErrorType = "generation_error"
	ErrRepository ErrorType = "repository_error"

	// Catch-all
	ErrInternal ErrorType = "internal_error"
)

// PipelineError is an error tagged with its taxonomy type and, when known, the dataset slug.
type PipelineError struct {
	Type ErrorType
	Slug string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Slug != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Type, e.Slug, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Type, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewError wraps err with a type and slug. A nil err yields nil.
func NewError(t ErrorType, slug string, err error) error {
	if err == nil {
		return nil
	}
	return &PipelineError{Type: t, Slug: slug, Err: err}
}

// ErrorTypeOf returns the type of the outermost PipelineError in err's chain.
func ErrorTypeOf(err error) ErrorType {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ErrInternal
}

// IsFatalToRun reports whether err must abort the run before any repository is touched.
func IsFatalToRun(err error) bool {
	switch ErrorTypeOf(err) {
	case ErrManifest, ErrConfig:
		return true
	}
	return false
}
