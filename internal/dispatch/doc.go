// Package dispatch implements the request dispatcher: a single-goroutine
// event loop that serves many concurrent requests without ever blocking on a
// device.
//
// A Handler splits its work in two. Begin runs on the loop and either
// replies at once (validation failures, unknown IDs) or returns an
// operation to run on the worker pool together with a continuation. The loop
// submits the operation, moves on to other requests, and runs the
// continuation when the pool delivers the result:
//
//	HTTP goroutine         loop goroutine                worker goroutine
//	--------------         --------------                ----------------
//	Do(req) ──inbox──▶     Begin(req)
//	                       Submit(op) ─────────────────▶  op()  (device lock held)
//	                       ... other requests ...         │
//	                       Resume(v, err) ◀─completions── then(fut)
//	   ◀──────reply─────── Response
//
// Each request suspends at most once. Continuations never run concurrently
// with each other or with any Begin.
package dispatch
