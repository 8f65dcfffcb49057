package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/drone-gateway/internal/device"
	"github.com/nerrad567/drone-gateway/internal/dispatch"
)

// handleDevice forwards a device request to the dispatcher and writes its
// response. The HTTP goroutine blocks here for the device latency; the
// dispatcher itself does not.
func (s *Server) handleDevice(resource string, action dispatch.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := deviceID(r)
		if !ok {
			writeNotFound(w)
			return
		}

		req := dispatch.Request{
			ID:       requestID(r),
			Resource: resource,
			Action:   action,
			DeviceID: id,
		}
		if action == dispatch.ActionSet {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			req.Body = body
		}

		resp, err := s.dispatcher.Do(r.Context(), req)
		if err != nil {
			s.writeDispatchError(w, r, err)
			return
		}
		writeResponse(w, resp)
	}
}

// writeDispatchError handles requests the dispatcher could not answer.
func (s *Server) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dispatch.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	case r.Context().Err() != nil:
		// Client went away; the device operation still completes.
		s.logger.Debug("client disconnected before reply", "request_id", requestID(r), "error", err)
	default:
		s.logger.Error("dispatch failed", "request_id", requestID(r), "error", err)
		writeInternalError(w)
	}
}

// handleListDevices returns the fleet catalogue. No device is touched.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Catalogue()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleHistory returns recent operations on one device, newest first.
func (s *Server) handleHistory(kind device.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := deviceID(r)
		if !ok {
			writeNotFound(w)
			return
		}
		handle, err := s.registry.Lookup(kind, id)
		if err != nil {
			writeNotFound(w)
			return
		}
		if s.history == nil {
			writeError(w, http.StatusServiceUnavailable, "operation history is disabled")
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		entries, err := s.history.List(r.Context(), handle.Ref(), limit)
		if err != nil {
			s.logger.Error("history query failed", "device", handle.Ref().String(), "error", err)
			writeInternalError(w)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"entries": entries,
			"count":   len(entries),
		})
	}
}

// deviceID parses the {id} path parameter. Values that overflow int are
// treated as unknown devices.
func deviceID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return 0, false
	}
	return id, true
}
