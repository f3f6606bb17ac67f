package dataflow

import (
	"errors"
	"fmt"
)

// Standard engine errors for consistent error handling across the library.
// Control-plane failures (naming, lifecycle) are recoverable and surface as
// errors; data-plane invariant violations (schema or type mismatches,
// partitioning-analysis bugs) are fatal and abort the process with a
// diagnostic, because incremental view maintenance cannot survive them.

var (
	// ErrUnknownFlow indicates a lookup of a flow that was never installed.
	ErrUnknownFlow = errors.New("unknown flow")

	// ErrUnknownTable indicates a reference to an unregistered table.
	ErrUnknownTable = errors.New("unknown table")

	// ErrDuplicateFlow indicates a flow name that is already installed.
	ErrDuplicateFlow = errors.New("duplicate flow")

	// ErrShutdown indicates an operation attempted after engine shutdown.
	ErrShutdown = errors.New("engine is shut down")
)

// UnknownFlowError provides flow context for unknown-flow errors.
type UnknownFlowError struct {
	Flow string
}

func (e *UnknownFlowError) Error() string {
	return fmt.Sprintf("flow %q is not installed", e.Flow)
}

func (e *UnknownFlowError) Unwrap() error { return ErrUnknownFlow }

// UnknownTableError provides table context for unknown-table errors.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("table %q is not registered", e.Table)
}

func (e *UnknownTableError) Unwrap() error { return ErrUnknownTable }

// DuplicateFlowError provides flow context for duplicate-flow errors.
type DuplicateFlowError struct {
	Flow string
}

func (e *DuplicateFlowError) Error() string {
	return fmt.Sprintf("flow %q is already installed", e.Flow)
}

func (e *DuplicateFlowError) Unwrap() error { return ErrDuplicateFlow }

// IsUnknownFlow checks if an error is an unknown-flow error.
func IsUnknownFlow(err error) bool {
	return errors.Is(err, ErrUnknownFlow)
}

// IsUnknownTable checks if an error is an unknown-table error.
func IsUnknownTable(err error) bool {
	return errors.Is(err, ErrUnknownTable)
}

// IsDuplicateFlow checks if an error is a duplicate-flow error.
func IsDuplicateFlow(err error) bool {
	return errors.Is(err, ErrDuplicateFlow)
}

// IsShutdown checks if an error indicates the engine was shut down.
func IsShutdown(err error) bool {
	return errors.Is(err, ErrShutdown)
}
