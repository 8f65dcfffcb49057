package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when no device of the requested kind has the given ID.
	ErrNotFound = errors.New("device: not found")

	// ErrNotWritable is returned when a write is attempted on a read-only device.
	ErrNotWritable = errors.New("device: not writable")

	// ErrOutOfRange matches every *RangeError via errors.Is.
	ErrOutOfRange = errors.New("device: value out of range")

	// ErrDuplicateDevice is returned when two devices share a kind and ID.
	ErrDuplicateDevice = errors.New("device: duplicate device")
)

// Bound names the limit a RangeError violated.
type Bound string

// Bounds.
const (
	BoundMinimum Bound = "minimum"
	BoundMaximum Bound = "maximum"
)

// RangeError reports a write value outside the device's declared bounds.
// The message is produced by the device and is suitable for clients:
//
//	The minimum speed is 0
//	The maximum brightness level is 255
type RangeError struct {
	Quantity string // "speed", "brightness level"
	Bound    Bound
	Limit    int
	Value    int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("The %s %s is %d", e.Bound, e.Quantity, e.Limit)
}

// Is lets errors.Is(err, ErrOutOfRange) match any RangeError.
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// checkRange returns a RangeError when v lies outside [lo, hi].
func checkRange(quantity string, v, lo, hi int) error {
	if v < lo {
		return &RangeError{Quantity: quantity, Bound: BoundMinimum, Limit: lo, Value: v}
	}
	if v > hi {
		return &RangeError{Quantity: quantity, Bound: BoundMaximum, Limit: hi, Value: v}
	}
	return nil
}
