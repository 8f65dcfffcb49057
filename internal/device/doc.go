// Package device provides the drone's device fleet and the registry that owns it.
//
// Three device kinds exist: the motor controller, indicator lights and the
// altimeter. Every operation on real hardware is slow, so each device holds
// a minimum latency per operation; callers run those operations on the
// worker pool, never on the dispatcher goroutine.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                            Registry                              │
//	│                                                                  │
//	│   Lookup(kind, id) ──▶ Handle ──▶ entry{RWMutex, Device}         │
//	│                          │                                       │
//	│                          ├── Read():  RLock, Device.Read()       │
//	│                          └── Write(): Lock,  Writer.Write(v)     │
//	│                                   │                              │
//	│                                   ▼                              │
//	│                          Observers (telemetry, history, ws)      │
//	└──────────────────────────────────────────────────────────────────┘
//
// # State machines
//
//   - Motor: OFF (speed 0) and ON (speed in 1..1000). turnedOn == speed != 0.
//   - Light: brightness level in 0..255.
//   - Altimeter: stateless; every read samples a value within its range.
//
// Out-of-range writes fail with *RangeError before any latency is spent and
// leave the device unchanged.
//
// # Usage
//
//	registry, err := device.NewRegistryFromConfig(cfg.Devices)
//	if err != nil {
//	    return err
//	}
//	h, err := registry.Lookup(device.KindMotor, 1)
//	if err != nil {
//	    return err // wraps device.ErrNotFound
//	}
//	status, err := h.Write(500) // blocks for the motor's write latency
//
// # Thread Safety
//
// Devices are not synchronised themselves. The Registry guarantees that at
// most one writer per device is in flight and that readers never interleave
// with a writer.
package device
