package device

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/drone-gateway/internal/infrastructure/config"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Op identifies the kind of device operation carried by an Event.
type Op string

// Operations.
const (
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// Event describes one completed, successful device operation.
type Event struct {
	ID       string
	Ref      Ref
	Op       Op
	Value    int // requested setpoint; zero for reads
	Status   Status
	Duration time.Duration
	At       time.Time
}

// Observer receives events after the device lock has been released.
// It is called on the worker goroutine that ran the operation and must not
// block: sinks doing I/O belong behind telemetry.QueuedObserver.
type Observer interface {
	DeviceEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// DeviceEvent implements Observer.
func (f ObserverFunc) DeviceEvent(ev Event) { f(ev) }

// entry pairs a device with the lock that serialises its writers.
type entry struct {
	mu     sync.RWMutex
	dev    Device
	writer Writer // nil for read-only devices
}

// Registry is the sole owner of the device fleet.
//
// Membership is fixed at construction. Every operation goes through a Handle,
// which takes the device's lock: any number of readers may run together, a
// writer runs alone. The lock is held for the full latency window, so a
// reader never observes a half-applied write.
//
// All public methods are thread-safe.
type Registry struct {
	entries map[Ref]*entry
	order   []Ref

	observers  []Observer
	observerMu sync.RWMutex

	logger Logger
}

// NewRegistry creates a registry owning the given devices.
// Returns ErrDuplicateDevice if two devices share a Ref.
func NewRegistry(devices ...Device) (*Registry, error) {
	r := &Registry{
		entries: make(map[Ref]*entry, len(devices)),
		logger:  noopLogger{},
	}
	for _, d := range devices {
		ref := d.Ref()
		if _, exists := r.entries[ref]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, ref)
		}
		e := &entry{dev: d}
		if w, ok := d.(Writer); ok {
			e.writer = w
		}
		r.entries[ref] = e
		r.order = append(r.order, ref)
	}
	sort.Slice(r.order, func(i, j int) bool {
		if r.order[i].Kind != r.order[j].Kind {
			return r.order[i].Kind < r.order[j].Kind
		}
		return r.order[i].ID < r.order[j].ID
	})
	return r, nil
}

// NewRegistryFromConfig builds the drone fleet described by cfg.
func NewRegistryFromConfig(cfg config.DevicesConfig) (*Registry, error) {
	devices := []Device{
		NewMotor(cfg.Motor.ID, Latency{Read: cfg.Motor.Latency.Read, Write: cfg.Motor.Latency.Write}),
		NewAltimeter(cfg.Altimeter.ID, cfg.Altimeter.MinAltitude, cfg.Altimeter.MaxAltitude,
			Latency{Read: cfg.Altimeter.Latency}),
	}
	for _, l := range cfg.Lights {
		devices = append(devices, NewLight(l.ID, l.Description, Latency{Read: l.Latency.Read, Write: l.Latency.Write}))
	}
	return NewRegistry(devices...)
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// AddObserver registers o to receive events for every successful operation.
func (r *Registry) AddObserver(o Observer) {
	r.observerMu.Lock()
	r.observers = append(r.observers, o)
	r.observerMu.Unlock()
}

// Lookup returns a handle for the device of the given kind and ID.
// Returns ErrNotFound if no such device exists.
func (r *Registry) Lookup(kind Kind, id int) (*Handle, error) {
	ref := Ref{Kind: kind, ID: id}
	e, ok := r.entries[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return &Handle{reg: r, ref: ref, e: e}, nil
}

// Catalogue lists static metadata for every device, ordered by kind then ID.
func (r *Registry) Catalogue() []Info {
	infos := make([]Info, 0, len(r.order))
	for _, ref := range r.order {
		infos = append(infos, r.entries[ref].dev.Info())
	}
	return infos
}

// Count returns the number of devices, optionally restricted to one kind.
// An empty kind counts everything.
func (r *Registry) Count(kind Kind) int {
	if kind == "" {
		return len(r.entries)
	}
	n := 0
	for ref := range r.entries {
		if ref.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Registry) notify(ev Event) {
	r.observerMu.RLock()
	observers := r.observers
	r.observerMu.RUnlock()

	for _, o := range observers {
		r.safeNotify(o, ev)
	}
}

// safeNotify isolates a panicking observer from the worker that called it.
func (r *Registry) safeNotify(o Observer, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("device observer panic recovered", "device", ev.Ref.String(), "panic", rec)
		}
	}()
	o.DeviceEvent(ev)
}

// Handle is a registry-mediated reference to one device. Handles are cheap
// and may be discarded after use; they never cache device state.
type Handle struct {
	reg *Registry
	ref Ref
	e   *entry
}

// Ref returns the device reference.
func (h *Handle) Ref() Ref { return h.ref }

// Info returns static metadata without touching the device.
func (h *Handle) Info() Info { return h.e.dev.Info() }

// Writable reports whether the device accepts writes.
func (h *Handle) Writable() bool { return h.e.writer != nil }

// Read samples the device under its shared lock. It blocks for the read
// latency plus any time spent waiting for an in-flight writer.
func (h *Handle) Read() (Status, error) {
	start := time.Now()

	h.e.mu.RLock()
	status := h.e.dev.Read()
	h.e.mu.RUnlock()

	h.reg.notify(Event{
		ID:       uuid.NewString(),
		Ref:      h.ref,
		Op:       OpRead,
		Status:   status,
		Duration: time.Since(start),
		At:       time.Now().UTC(),
	})
	return status, nil
}

// Write applies v under the device's exclusive lock. A rejected value
// returns the device's *RangeError and leaves the device unchanged.
func (h *Handle) Write(v int) (Status, error) {
	if h.e.writer == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotWritable, h.ref)
	}

	start := time.Now()

	h.e.mu.Lock()
	status, err := h.e.writer.Write(v)
	h.e.mu.Unlock()

	if err != nil {
		h.reg.logger.Debug("device write rejected", "device", h.ref.String(), "value", v, "error", err)
		return nil, err
	}

	h.reg.notify(Event{
		ID:       uuid.NewString(),
		Ref:      h.ref,
		Op:       OpWrite,
		Value:    v,
		Status:   status,
		Duration: time.Since(start),
		At:       time.Now().UTC(),
	})
	return status, nil
}
