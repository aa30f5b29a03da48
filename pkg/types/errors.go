package types

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Input validation errors
	ErrNoInputs = errors.New("no files provided")

	// Discovery errors
	ErrPathNotFound    = errors.New("path does not exist")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrPathNotReadable = errors.New("path is not readable")

	// Result validation errors
	ErrInvalidCounts   = errors.New("processed + failed + skipped must equal total")
	ErrStatusMismatch  = errors.New("status does not match counts")
	ErrMissingError    = errors.New("failed result without outcomes must carry an error")
	ErrOutcomeMismatch = errors.New("outcome count does not match total")
	ErrInvalidStatus   = errors.New("unknown status")
)

// DiscoveryError reports that a folder root could not be enumerated.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.Root, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}
