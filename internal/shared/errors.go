package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrRunNotFound is returned when an invoice run id is unknown.
	ErrRunNotFound = fmt.Errorf("invoice run %w", ErrNotFound)
	// ErrDuplicateRun indicates the run id already exists in storage.
	ErrDuplicateRun = errors.New("invoice run already stored")
	// ErrInvalidInput marks malformed payroll or allocation documents.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized occurs when the ops bearer token is missing or wrong.
	ErrUnauthorized = errors.New("unauthorized")
)
