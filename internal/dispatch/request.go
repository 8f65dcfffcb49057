package dispatch

import (
	"net/http"

	"github.com/nerrad567/drone-gateway/internal/worker"
)

// Action is what a request asks of a resource.
type Action string

// Actions.
const (
	ActionGet Action = "get"
	ActionSet Action = "set"
)

// Request is one inbound control-plane request, already routed.
type Request struct {
	ID       string // correlation ID, for logs only
	Resource string // e.g. "motors"
	Action   Action
	DeviceID int
	Body     []byte
}

// Response is the protocol-level outcome of a request. A nil Body means an
// empty response body.
type Response struct {
	Status int
	Body   any
}

// ErrorBody is the JSON body of every error response that carries a message.
type ErrorBody struct {
	Error string `json:"error"`
}

// OK returns a 200 response carrying body.
func OK(body any) Response {
	return Response{Status: http.StatusOK, Body: body}
}

// Fail returns an error response with a message body.
func Fail(status int, msg string) Response {
	return Response{Status: status, Body: ErrorBody{Error: msg}}
}

// Empty returns a response with no body.
func Empty(status int) Response {
	return Response{Status: status}
}

// Resume is a handler continuation. It runs on the dispatch goroutine with
// the outcome of the operation the handler suspended on.
type Resume func(value any, err error) Response

// Step is what a handler's Begin returns: either a final response, or an
// operation to run on the pool plus the continuation to run afterwards.
type Step struct {
	resp   Response
	op     worker.Op
	resume Resume
}

// Reply finishes the request without touching a device.
func Reply(resp Response) Step {
	return Step{resp: resp}
}

// Await suspends the request on op. resume runs exactly once, after op
// completes.
func Await(op worker.Op, resume Resume) Step {
	return Step{op: op, resume: resume}
}

// Suspends reports whether the step hands work to the pool.
func (s Step) Suspends() bool { return s.op != nil }

// Handler serves one resource. Begin runs on the dispatch goroutine and must
// not block; anything slow belongs in the operation it returns.
type Handler interface {
	Begin(req Request) Step
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(req Request) Step

// Begin implements Handler.
func (f HandlerFunc) Begin(req Request) Step { return f(req) }

// RunInline executes the step synchronously on the calling goroutine.
// Intended for tests of handlers in isolation from the loop.
func (s Step) RunInline() Response {
	if s.op == nil {
		return s.resp
	}
	v, err := s.op()
	return s.resume(v, err)
}
