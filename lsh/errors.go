package lsh

import (
	"errors"
	"fmt"

	"github.com/gasparian/lsh-search-go/vector"
)

var (
	// ErrConfiguration is matched by every invalid construction parameter error
	ErrConfiguration = errors.New("lsh: invalid configuration")
	// ErrSerialization is matched by every snapshot encoding/decoding error
	ErrSerialization = errors.New("lsh: snapshot serialization failed")

	emptySignatureErr = errors.New("lsh: signatures must not be empty")
)

// DimensionMismatchError is returned when a vector's size differs from the configured dimension
type DimensionMismatchError = vector.DimensionMismatchError

// ConfigError describes an invalid construction parameter
type ConfigError struct {
	Param  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("lsh: invalid %s=%v: %s", e.Param, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) hold
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErr(param string, value any, reason string) error {
	return &ConfigError{Param: param, Value: value, Reason: reason}
}

// SignatureLengthMismatchError is returned when two signatures of different length are compared
type SignatureLengthMismatchError struct {
	Left  int
	Right int
}

func (e *SignatureLengthMismatchError) Error() string {
	return fmt.Sprintf("lsh: signature length mismatch: %d != %d", e.Left, e.Right)
}

// SerializationError wraps a failure to write or read an index snapshot
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("lsh: snapshot %s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSerialization) hold
func (e *SerializationError) Is(target error) bool {
	return target == ErrSerialization
}

func checkDims(expected int, v *vector.Vector) error {
	if v.Size() != expected {
		return &DimensionMismatchError{Expected: expected, Actual: v.Size()}
	}
	return nil
}
