package device

import (
	"fmt"
	"time"
)

// Kind classifies a device and selects the resource that exposes it.
type Kind string

// Device kinds.
const (
	KindMotor     Kind = "motor"
	KindLight     Kind = "light"
	KindAltimeter Kind = "altimeter"
)

// validKinds is the set of recognised kinds.
var validKinds = map[Kind]bool{
	KindMotor:     true,
	KindLight:     true,
	KindAltimeter: true,
}

// IsValid reports whether k is a recognised kind.
func (k Kind) IsValid() bool {
	return validKinds[k]
}

// Ref names one device in the registry.
type Ref struct {
	Kind Kind
	ID   int
}

// String returns "kind/id", e.g. "motor/1".
func (r Ref) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}

// Info is static device metadata. Reading it never touches hardware.
type Info struct {
	Kind        Kind   `json:"kind"`
	ID          int    `json:"id"`
	Description string `json:"description"`
	Writable    bool   `json:"writable"`
}

// Status is an immutable snapshot of a device's observable state.
type Status interface {
	// Fields returns the snapshot as name/value pairs for telemetry sinks.
	Fields() map[string]any
}

// Device is the capability shared by every device: identify, describe, read.
//
// Implementations are not safe for concurrent use on their own; the Registry
// serialises access through Handle.
type Device interface {
	Ref() Ref
	Info() Info

	// Read samples the device. It blocks for the device's read latency.
	Read() Status
}

// Writer is implemented by devices that accept a single integer setpoint.
type Writer interface {
	Device

	// Write validates v against the device bounds and applies it. A rejected
	// value returns a *RangeError and leaves the device unchanged.
	Write(v int) (Status, error)
}

// Latency holds the minimum duration of each device operation. It models
// actuator settling and sensor acquisition time and is never skipped.
type Latency struct {
	Read  time.Duration
	Write time.Duration
}

// hold blocks for d. Device operations call it while the registry lock is held.
// Configured latencies are always positive; a zero Latency only appears in
// devices constructed directly.
func hold(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
