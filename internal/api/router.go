package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/drone-gateway/internal/control"
	"github.com/nerrad567/drone-gateway/internal/device"
	"github.com/nerrad567/drone-gateway/internal/dispatch"
)

// deviceRoute binds a URL prefix to a dispatcher resource.
type deviceRoute struct {
	prefix   string
	resource string
	kind     device.Kind
	writable bool
}

// deviceRoutes lists every device path. /hexacopters and /leds are aliases
// kept for existing clients.
var deviceRoutes = []deviceRoute{
	{"/motors", control.ResourceMotors, device.KindMotor, true},
	{"/hexacopters", control.ResourceMotors, device.KindMotor, true},
	{"/lights", control.ResourceLights, device.KindLight, true},
	{"/leds", control.ResourceLights, device.KindLight, true},
	{"/altimeters", control.ResourceAltimeters, device.KindAltimeter, false},
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Unknown paths and methods answer with an empty body, like unknown ids.
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, nil)
	})

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/devices", s.handleListDevices)
	r.Get("/ws", s.handleWebSocket)

	for _, dr := range deviceRoutes {
		path := dr.prefix + "/{id:[0-9]+}"
		r.Get(path, s.handleDevice(dr.resource, dispatch.ActionGet))
		if dr.writable {
			r.Patch(path, s.handleDevice(dr.resource, dispatch.ActionSet))
			r.Get(path+"/history", s.handleHistory(dr.kind))
		}
	}

	return r
}
