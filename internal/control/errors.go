package control

import (
	"errors"
	"net/http"

	"github.com/nerrad567/drone-gateway/internal/device"
	"github.com/nerrad567/drone-gateway/internal/dispatch"
)

// ValidationError reports structurally invalid input: a malformed body, or a
// required field that is absent, null or not an integer. It is detected
// before any device access.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func missingField(field string) *ValidationError {
	return &ValidationError{Field: field, Message: field + " is required"}
}

func notInteger(field string) *ValidationError {
	return &ValidationError{Field: field, Message: field + " must be an integer"}
}

var errInvalidJSON = &ValidationError{Message: "invalid JSON body"}

// errorResponse maps an error to its protocol-level response.
//
//	device.ErrNotFound    → 404, empty body
//	*ValidationError      → 400 {"error": ...}
//	*device.RangeError    → 400 {"error": "The minimum speed is 0"}
//	device.ErrNotWritable → 405
//	anything else         → 500 {"error": "internal error"}
func errorResponse(err error) (resp dispatch.Response, internal bool) {
	var (
		verr *ValidationError
		rerr *device.RangeError
	)
	switch {
	case errors.Is(err, device.ErrNotFound):
		return dispatch.Empty(http.StatusNotFound), false
	case errors.As(err, &verr):
		return dispatch.Fail(http.StatusBadRequest, verr.Message), false
	case errors.As(err, &rerr):
		return dispatch.Fail(http.StatusBadRequest, rerr.Error()), false
	case errors.Is(err, device.ErrNotWritable):
		return dispatch.Fail(http.StatusMethodNotAllowed, "method not allowed"), false
	default:
		return dispatch.Fail(http.StatusInternalServerError, "internal error"), true
	}
}
