// internal/apperrors/errors.go

// Package apperrors holds the engine's error taxonomy. Errors are built with
// github.com/cockroachdb/errors and carry a mark for their class, so callers
// test the class with the Is* helpers rather than comparing messages.
package apperrors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrValidation marks a malformed request or template definition.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a reference to an unknown id.
	ErrNotFound = errors.New("not found")

	// ErrMissingVariable marks a render with an unresolved placeholder.
	ErrMissingVariable = errors.New("missing variable")

	// ErrCorruptLineage marks a lineage walk that found a cycle, a dangling
	// parent, a chain deeper than the configured bound or a hash mismatch.
	// It is a data-integrity fault and is never retried.
	ErrCorruptLineage = errors.New("corrupt lineage")
)

// MissingVariableError names the first placeholder that had neither a
// supplied value nor a default.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing variable %q", e.Name)
}

func Validationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// WrapValidation marks err, typically validator.ValidationErrors, as a
// validation failure while keeping it reachable through errors.As.
func WrapValidation(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrValidation)
}

func NotFoundf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func CorruptLineagef(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruptLineage)
}

func MissingVariable(name string) error {
	return errors.Mark(errors.WithStack(&MissingVariableError{Name: name}), ErrMissingVariable)
}

func IsValidation(err error) bool {
	return err != nil && errors.Is(err, ErrValidation)
}

func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}

func IsMissingVariable(err error) bool {
	return err != nil && errors.Is(err, ErrMissingVariable)
}

func IsCorruptLineage(err error) bool {
	return err != nil && errors.Is(err, ErrCorruptLineage)
}

// MissingVariableName returns the placeholder name carried by err, if any.
func MissingVariableName(err error) (string, bool) {
	var mv *MissingVariableError
	if errors.As(err, &mv) {
		return mv.Name, true
	}
	return "", false
}

// Newf, Wrap and Wrapf re-export the library helpers so services keep one import.
var (
	Newf  = errors.Newf
	Wrap  = errors.Wrap
	Wrapf = errors.Wrapf
	Is    = errors.Is
)
