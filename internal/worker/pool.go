// Package worker runs blocking device operations on a fixed set of goroutines.
//
// The pool bounds how many operations execute at once. It does not know what
// an operation touches: per-device exclusivity belongs to the device registry.
//
//	pool, err := worker.New(4)
//	fut, err := pool.Submit(func() (any, error) { return h.Read() }, nil)
//	status, err := fut.Await(ctx)
//
// Submissions beyond the pool size queue in arrival order and are never
// dropped. Submit never blocks.
package worker

import (
	"fmt"
	"sync"
	"time"
)

// Op is a unit of blocking work.
type Op func() (any, error)

// Logger defines the logging interface used by the pool.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder receives pool occupancy updates, typically for metrics export.
// Methods are called with the pool lock released and must be cheap.
type Recorder interface {
	Queued(depth int)
	Started(active int, waited time.Duration)
	Finished(active int, ran time.Duration, err error)
}

type noopRecorder struct{}

func (noopRecorder) Queued(int)                         {}
func (noopRecorder) Started(int, time.Duration)         {}
func (noopRecorder) Finished(int, time.Duration, error) {}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers    int    `json:"workers"`
	Active     int    `json:"active"`
	Queued     int    `json:"queued"`
	PeakActive int    `json:"peak_active"`
	Completed  uint64 `json:"completed"`
}

type task struct {
	op       Op
	then     func(*Future)
	fut      *Future
	enqueued time.Time
}

// Pool is a fixed-size worker pool with an unbounded FIFO queue.
type Pool struct {
	size int

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []*task
	closed    bool
	active    int
	peak      int
	completed uint64

	wg       sync.WaitGroup
	logger   Logger
	recorder Recorder
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithRecorder sets the occupancy recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pool) { p.recorder = r }
}

// New starts a pool of size workers.
func New(size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	p := &Pool{
		size:     size,
		logger:   noopLogger{},
		recorder: noopRecorder{},
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(size)
	for i := range size {
		go p.run(i)
	}
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Submit queues op for execution and returns its Future. If then is non-nil
// it is called on the worker goroutine after the Future resolves.
//
// Returns ErrPoolClosed after Close; then is not called in that case.
func (p *Pool) Submit(op Op, then func(*Future)) (*Future, error) {
	t := &task{op: op, then: then, fut: newFuture(), enqueued: time.Now()}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.queue = append(p.queue, t)
	depth := len(p.queue)
	p.cond.Signal()
	p.mu.Unlock()

	p.recorder.Queued(depth)
	return t.fut, nil
}

// Stats returns current occupancy counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Workers:    p.size,
		Active:     p.active,
		Queued:     len(p.queue),
		PeakActive: p.peak,
		Completed:  p.completed,
	}
}

// Close stops accepting work, lets queued operations finish and waits for
// every worker to exit. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.active++
		if p.active > p.peak {
			p.peak = p.active
		}
		active, depth := p.active, len(p.queue)
		p.mu.Unlock()

		waited := time.Since(t.enqueued)
		p.recorder.Queued(depth)
		p.recorder.Started(active, waited)

		start := time.Now()
		value, err := p.execute(id, t.op)
		ran := time.Since(start)

		p.mu.Lock()
		p.active--
		p.completed++
		active = p.active
		p.mu.Unlock()

		p.recorder.Finished(active, ran, err)

		t.fut.queued = waited
		t.fut.duration = ran
		t.fut.resolve(value, err)
		if t.then != nil {
			t.then(t.fut)
		}
	}
}

// execute runs op, converting a panic into ErrOperationPanicked.
func (p *Pool) execute(id int, op Op) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("worker operation panic recovered", "worker", id, "panic", rec)
			value, err = nil, fmt.Errorf("%w: %v", ErrOperationPanicked, rec)
		}
	}()
	return op()
}
