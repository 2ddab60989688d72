package audiotour

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("not authenticated")
)

// FieldError describes one invalid input value.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

// ValidationError collects field errors. The zero value is ready to use.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Add(path, message string, value any) {
	e.Fields = append(e.Fields, FieldError{Path: path, Message: message, Value: value})
}

// OrNil returns e when it holds at least one field error.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Path + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Invalid builds a single-field ValidationError.
func Invalid(path, message string, value any) error {
	return &ValidationError{Fields: []FieldError{{Path: path, Message: message, Value: value}}}
}

// Ref names an entity that blocks an operation.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ConflictError reports a blocked operation together with the entities
// still referencing the target. It matches ErrConflict with errors.Is.
type ConflictError struct {
	Message string
	Tours   []Ref
	Stops   []Ref
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (referenced by %d tours, %d stops)", e.Message, len(e.Tours), len(e.Stops))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
