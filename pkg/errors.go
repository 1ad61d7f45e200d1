package calocell

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationMismatch is returned when calibration constants do not
	// match the pulse they are applied to.
	ErrConfigurationMismatch = errors.New("configuration mismatch")
	// ErrLedgerIntegrity is returned when a hash is inserted twice as a fresh
	// ledger entry.
	ErrLedgerIntegrity = errors.New("ledger integrity violation")
	// ErrMissingInput is returned when a container entry cannot be found by key.
	ErrMissingInput = errors.New("missing input")
	// ErrDegenerateGeometry is returned for cells whose projection onto the
	// beam axis is undefined.
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	// ErrInvalidCell is returned when static cell attributes break their invariants.
	ErrInvalidCell = errors.New("invalid cell")
)

// StageError attaches the stage and the cell to a failure.
type StageError struct {
	Stage string
	Hash  uint32
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: cell %d: %v", e.Stage, e.Hash, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error {
	return e.Err
}

// ErrCreateGroup represents an error when creating a group.
type ErrCreateGroup struct {
	GroupName string
	Err       error
}

func (e *ErrCreateGroup) Error() string {
	return fmt.Sprintf("error creating group %q: %v", e.GroupName, e.Err)
}

func (e *ErrCreateGroup) Unwrap() error {
	return e.Err
}

// ErrCreateTable represents an error when creating a table.
type ErrCreateTable struct {
	TableName string
	Err       error
}

func (e *ErrCreateTable) Error() string {
	return fmt.Sprintf("error creating table %q: %v", e.TableName, e.Err)
}

func (e *ErrCreateTable) Unwrap() error {
	return e.Err
}

// Kind names the failure class of err, used for log summaries.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConfigurationMismatch):
		return "ConfigurationMismatch"
	case errors.Is(err, ErrLedgerIntegrity):
		return "LedgerIntegrityViolation"
	case errors.Is(err, ErrMissingInput):
		return "MissingInput"
	case errors.Is(err, ErrDegenerateGeometry):
		return "DegenerateGeometry"
	case errors.Is(err, ErrInvalidCell):
		return "InvalidCell"
	default:
		return "Unknown"
	}
}

// ErrDecodeEvent represents an input line that is not a valid event.
type ErrDecodeEvent struct {
	Line int
	Err  error
}

func (e *ErrDecodeEvent) Error() string {
	return fmt.Sprintf("error decoding event on line %d: %v", e.Line, e.Err)
}

func (e *ErrDecodeEvent) Unwrap() error {
	return e.Err
}
