package control

import (
	"net/http"

	"github.com/nerrad567/drone-gateway/internal/device"
	"github.com/nerrad567/drone-gateway/internal/dispatch"
)

// Resource names, as routed by the API and registered with the dispatcher.
const (
	ResourceMotors     = "motors"
	ResourceLights     = "lights"
	ResourceAltimeters = "altimeters"
)

// Setpoint fields in PATCH bodies.
const (
	FieldMotorSpeed      = "motor_speed"
	FieldBrightnessLevel = "brightness_level"
)

// Logger defines the logging interface used by the handlers.
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

// Handler serves one device kind. It implements dispatch.Handler.
//
// Begin resolves the device and validates the body on the dispatch
// goroutine; the device operation itself is returned for the pool.
type Handler struct {
	kind     device.Kind
	resource string
	field    string // setpoint field; empty for read-only kinds
	registry *device.Registry
	logger   Logger
}

// NewMotorHandler serves /motors/{id}.
func NewMotorHandler(reg *device.Registry) *Handler {
	return &Handler{kind: device.KindMotor, resource: ResourceMotors, field: FieldMotorSpeed, registry: reg, logger: noopLogger{}}
}

// NewLightHandler serves /lights/{id}.
func NewLightHandler(reg *device.Registry) *Handler {
	return &Handler{kind: device.KindLight, resource: ResourceLights, field: FieldBrightnessLevel, registry: reg, logger: noopLogger{}}
}

// NewAltimeterHandler serves /altimeters/{id}. Altimeters are read-only.
func NewAltimeterHandler(reg *device.Registry) *Handler {
	return &Handler{kind: device.KindAltimeter, resource: ResourceAltimeters, registry: reg, logger: noopLogger{}}
}

// SetLogger sets the handler logger.
func (h *Handler) SetLogger(logger Logger) {
	h.logger = logger
}

// Resource returns the resource name the handler serves.
func (h *Handler) Resource() string { return h.resource }

// Kind returns the device kind the handler serves.
func (h *Handler) Kind() device.Kind { return h.kind }

// Begin implements dispatch.Handler.
func (h *Handler) Begin(req dispatch.Request) dispatch.Step {
	handle, err := h.registry.Lookup(h.kind, req.DeviceID)
	if err != nil {
		return h.reply(req, err)
	}

	switch req.Action {
	case dispatch.ActionGet:
		h.logger.Debug("device read submitted", "request_id", req.ID, "device", handle.Ref().String())
		return dispatch.Await(
			func() (any, error) { return handle.Read() },
			h.resume(req, handle.Ref()),
		)

	case dispatch.ActionSet:
		if h.field == "" {
			return h.reply(req, device.ErrNotWritable)
		}
		v, err := parseSetpoint(req.Body, h.field)
		if err != nil {
			return h.reply(req, err)
		}
		h.logger.Debug("device write submitted", "request_id", req.ID, "device", handle.Ref().String(), "value", v)
		return dispatch.Await(
			func() (any, error) { return handle.Write(v) },
			h.resume(req, handle.Ref()),
		)

	default:
		return dispatch.Reply(dispatch.Fail(http.StatusMethodNotAllowed, "method not allowed"))
	}
}

func (h *Handler) resume(req dispatch.Request, ref device.Ref) dispatch.Resume {
	return func(v any, err error) dispatch.Response {
		if err != nil {
			return h.respondErr(req, ref.String(), err)
		}
		return dispatch.OK(v)
	}
}

func (h *Handler) reply(req dispatch.Request, err error) dispatch.Step {
	return dispatch.Reply(h.respondErr(req, "", err))
}

func (h *Handler) respondErr(req dispatch.Request, ref string, err error) dispatch.Response {
	resp, internal := errorResponse(err)
	if internal {
		h.logger.Error("device operation failed",
			"request_id", req.ID,
			"resource", h.resource,
			"device_id", req.DeviceID,
			"error", err,
		)
	} else if ref != "" {
		h.logger.Debug("device operation rejected", "request_id", req.ID, "device", ref, "error", err)
	}
	return resp
}

// Register builds the handler for every device kind and registers it with d.
func Register(d *dispatch.Dispatcher, reg *device.Registry, logger Logger) {
	for _, h := range []*Handler{
		NewMotorHandler(reg),
		NewLightHandler(reg),
		NewAltimeterHandler(reg),
	} {
		if logger != nil {
			h.SetLogger(logger)
		}
		d.Handle(h.Resource(), h)
	}
}
