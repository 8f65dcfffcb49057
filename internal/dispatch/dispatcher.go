package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/drone-gateway/internal/worker"
)

// defaultInboxSize is used when the configured inbox size is zero.
const defaultInboxSize = 64

// Logger defines the logging interface used by the Dispatcher.
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

// Submitter is the part of the worker pool the dispatcher needs.
type Submitter interface {
	Submit(op worker.Op, then func(*worker.Future)) (*worker.Future, error)
}

// Recorder observes finished requests, typically for metrics export.
type Recorder interface {
	Request(resource string, action Action, status int, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) Request(string, Action, int, time.Duration) {}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	Running   bool   `json:"running"`
	Accepted  uint64 `json:"accepted"`
	Suspended int64  `json:"suspended"`
	Completed uint64 `json:"completed"`
	Panics    uint64 `json:"panics"`
}

// call is one request travelling through the loop.
type call struct {
	req     Request
	reply   chan Response
	started time.Time
}

// completion carries a finished pool operation back onto the loop.
type completion struct {
	c      *call
	resume Resume
	value  any
	err    error
}

// Dispatcher is a single-goroutine event loop. Handler code, both Begin and
// every Resume, runs only on the loop goroutine, one step at a time. Blocking
// work runs on the pool; the loop keeps serving other requests meanwhile.
type Dispatcher struct {
	pool     Submitter
	handlers map[string]Handler

	inbox       chan *call
	completions chan completion
	done        chan struct{}
	running     atomic.Bool
	runOnce     sync.Once

	accepted  atomic.Uint64
	suspended atomic.Int64
	completed atomic.Uint64
	panics    atomic.Uint64

	logger   Logger
	recorder Recorder
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithRecorder sets the request recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithInboxSize sets the inbox buffer. Zero selects the default.
func WithInboxSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.inbox = make(chan *call, n)
		}
	}
}

// New creates a dispatcher that offloads operations to pool.
// Handlers must be registered before Run.
func New(pool Submitter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pool:        pool,
		handlers:    make(map[string]Handler),
		inbox:       make(chan *call, defaultInboxSize),
		completions: make(chan completion),
		done:        make(chan struct{}),
		logger:      noopLogger{},
		recorder:    noopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle registers h for resource. Not safe to call once Run has started.
func (d *Dispatcher) Handle(resource string, h Handler) {
	d.handlers[resource] = h
}

// Run owns the loop until ctx is cancelled. Requests still suspended when it
// returns are answered with ErrStopped; their operations finish on the pool.
func (d *Dispatcher) Run(ctx context.Context) error {
	first := false
	d.runOnce.Do(func() { first = true })
	if !first {
		return ErrAlreadyRunning
	}

	d.running.Store(true)
	d.logger.Info("dispatcher started", "handlers", len(d.handlers))
	defer func() {
		d.running.Store(false)
		close(d.done)
		d.logger.Info("dispatcher stopped", "abandoned", d.suspended.Load())
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-d.inbox:
			d.begin(c)
		case comp := <-d.completions:
			d.suspended.Add(-1)
			d.finish(comp.c, d.safeResume(comp.c, comp.resume, comp.value, comp.err))
		}
	}
}

// Do submits req to the loop and waits for its response. The response is
// only produced after the request's device operation, if any, has finished.
//
// If ctx ends first Do returns ctx.Err(); the operation is not cancelled.
// Returns ErrStopped if the loop has exited.
func (d *Dispatcher) Do(ctx context.Context, req Request) (Response, error) {
	c := &call{req: req, reply: make(chan Response, 1), started: time.Now()}

	select {
	case d.inbox <- c:
	case <-d.done:
		return Response{}, ErrStopped
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-c.reply:
		return resp, nil
	case <-d.done:
		// A reply sent just before the loop exited still wins.
		select {
		case resp := <-c.reply:
			return resp, nil
		default:
			return Response{}, ErrStopped
		}
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Running:   d.running.Load(),
		Accepted:  d.accepted.Load(),
		Suspended: d.suspended.Load(),
		Completed: d.completed.Load(),
		Panics:    d.panics.Load(),
	}
}

// begin runs the handler up to its suspension point.
func (d *Dispatcher) begin(c *call) {
	d.accepted.Add(1)

	h, ok := d.handlers[c.req.Resource]
	if !ok {
		d.finish(c, Empty(http.StatusNotFound))
		return
	}

	step, ok := d.safeBegin(c, h)
	if !ok {
		d.finish(c, internalFailure())
		return
	}
	if !step.Suspends() {
		d.finish(c, step.resp)
		return
	}

	resume := step.resume
	_, err := d.pool.Submit(step.op, func(f *worker.Future) {
		v, err := f.Result()
		select {
		case d.completions <- completion{c: c, resume: resume, value: v, err: err}:
		case <-d.done:
		}
	})
	if err != nil {
		// Pool refused the work; the continuation still decides the response.
		d.finish(c, d.safeResume(c, resume, nil, err))
		return
	}
	d.suspended.Add(1)
}

func (d *Dispatcher) finish(c *call, resp Response) {
	d.completed.Add(1)
	c.reply <- resp
	d.recorder.Request(c.req.Resource, c.req.Action, resp.Status, time.Since(c.started))
	d.logger.Debug("request dispatched",
		"request_id", c.req.ID,
		"resource", c.req.Resource,
		"action", string(c.req.Action),
		"device_id", c.req.DeviceID,
		"status", resp.Status,
		"elapsed", time.Since(c.started),
	)
}

func (d *Dispatcher) safeBegin(c *call, h Handler) (step Step, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			d.recoverPanic(c, "begin", rec)
			ok = false
		}
	}()
	return h.Begin(c.req), true
}

func (d *Dispatcher) safeResume(c *call, resume Resume, v any, err error) (resp Response) {
	defer func() {
		if rec := recover(); rec != nil {
			d.recoverPanic(c, "resume", rec)
			resp = internalFailure()
		}
	}()
	return resume(v, err)
}

func (d *Dispatcher) recoverPanic(c *call, phase string, rec any) {
	d.panics.Add(1)
	d.logger.Error("handler panic recovered",
		"request_id", c.req.ID,
		"resource", c.req.Resource,
		"phase", phase,
		"panic", fmt.Sprint(rec),
	)
}

func internalFailure() Response {
	return Fail(http.StatusInternalServerError, "internal error")
}
