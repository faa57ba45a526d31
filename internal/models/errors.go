package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation errors for models.
var (
	// ErrJobTypeRequired indicates a job was created without a type.
	ErrJobTypeRequired = errors.New("type is required")

	// ErrDirRequired indicates a catalog entry was created without a
	// recording directory.
	ErrDirRequired = errors.New("dir is required")
)
