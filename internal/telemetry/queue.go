package telemetry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/drone-gateway/internal/device"
)

// DefaultQueueSize is the per-sink event buffer used by the gateway.
const DefaultQueueSize = 256

// QueueStats is a snapshot of a QueuedObserver's counters.
type QueueStats struct {
	Delivered uint64
	Dropped   uint64
	Pending   int
}

// QueuedObserver decouples a slow sink from the worker pool. DeviceEvent
// only enqueues; a dedicated goroutine hands events to the wrapped observer
// in arrival order. When the buffer is full the event is dropped and
// counted, so a stalled broker or database never holds a worker slot.
type QueuedObserver struct {
	name   string
	inner  device.Observer
	logger Logger

	mu     sync.RWMutex // guards closed against sends on a closed channel
	closed bool
	events chan device.Event
	done   chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewQueuedObserver starts draining into inner. Non-positive sizes fall
// back to DefaultQueueSize. Call Close to stop the goroutine.
func NewQueuedObserver(name string, inner device.Observer, size int, logger Logger) *QueuedObserver {
	if size < 1 {
		size = DefaultQueueSize
	}
	q := &QueuedObserver{
		name:   name,
		inner:  inner,
		logger: orNoop(logger),
		events: make(chan device.Event, size),
		done:   make(chan struct{}),
	}
	go q.drain()
	return q
}

// Name returns the sink name used in logs.
func (q *QueuedObserver) Name() string { return q.name }

// DeviceEvent implements device.Observer. It never blocks.
func (q *QueuedObserver) DeviceEvent(ev device.Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.dropped.Add(1)
		return
	}

	select {
	case q.events <- ev:
	default:
		if q.dropped.Add(1) == 1 {
			q.logger.Warn("telemetry queue full, dropping events", "sink", q.name, "capacity", cap(q.events))
		}
	}
}

// Stats returns the current counters.
func (q *QueuedObserver) Stats() QueueStats {
	return QueueStats{
		Delivered: q.delivered.Load(),
		Dropped:   q.dropped.Load(),
		Pending:   len(q.events),
	}
}

// Close stops accepting events and waits until the buffered ones have been
// delivered or ctx is done. Later events are counted as dropped. Safe to
// call more than once.
func (q *QueuedObserver) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *QueuedObserver) drain() {
	defer close(q.done)
	for ev := range q.events {
		q.deliver(ev)
	}
}

func (q *QueuedObserver) deliver(ev device.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			q.logger.Error("telemetry sink panic recovered", "sink", q.name, "device", ev.Ref.String(), "panic", rec)
		}
	}()
	q.inner.DeviceEvent(ev)
	q.delivered.Add(1)
}
