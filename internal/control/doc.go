// Package control holds the request handlers, one per device kind.
//
// A handler turns a routed request into a device operation. Lookup and body
// validation happen synchronously on the dispatch goroutine, so unknown IDs
// and malformed input never reach the worker pool. The read or write itself
// is handed back to the dispatcher to run on the pool, and the continuation
// renders the device's status snapshot or error.
package control
