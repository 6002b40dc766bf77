package meter

import (
	"errors"
	"fmt"

	"github.com/nerrad567/glowmarkt-logger/internal/infrastructure/database"
)

// Domain errors for the meter package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, meter.ErrPoolExhausted) {
//	    // no connection was free; the reading was dropped
//	}
var (
	// ErrPoolExhausted is returned when no database connection became free
	// within the acquire timeout. It also matches database.ErrPoolExhausted.
	ErrPoolExhausted = fmt.Errorf("meter: %w", database.ErrPoolExhausted)

	// ErrReadingNotFound is returned by GetByTimestamp when no record set
	// exists for a timestamp.
	ErrReadingNotFound = errors.New("meter: reading not found")
)

// DecodeError reports a payload that could not be turned into a Reading.
type DecodeError struct {
	// Field is the dotted path of the offending member, empty when the
	// payload is not valid JSON at all.
	Field string

	// Reason is a short description, e.g. "missing" or "invalid format".
	Reason string

	// Err is the underlying parse error, if any.
	Err error
}

func (e *DecodeError) Error() string {
	msg := "meter: decode payload"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PersistErrorKind classifies a PersistError.
type PersistErrorKind int

const (
	// PersistStorage is a failure reported by the storage engine.
	PersistStorage PersistErrorKind = iota + 1

	// PersistTimestampParse is a timestamp that could not be converted to
	// or from its storage form.
	PersistTimestampParse
)

// String returns the kind name used in logs.
func (k PersistErrorKind) String() string {
	switch k {
	case PersistStorage:
		return "storage"
	case PersistTimestampParse:
		return "timestamp_parse"
	default:
		return "unknown"
	}
}

// PersistError reports a failed write or read of a record set.
// The transaction, if any, has been rolled back.
type PersistError struct {
	Kind PersistErrorKind

	// Op names the step that failed, e.g. "insert power_readings".
	Op string

	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("meter: persist (%s): %s: %v", e.Kind, e.Op, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &PersistError{Kind: PersistStorage, Op: op, Err: err}
}
