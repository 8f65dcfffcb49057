package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/drone-gateway/internal/dispatch"
)

// writeJSON writes a JSON response with the given status code and payload.
// A nil payload writes the status with an empty body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	if v == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	json.NewEncoder(w).Encode(v)
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, dispatch.ErrorBody{Error: message})
}

// writeResponse writes a dispatcher response.
func writeResponse(w http.ResponseWriter, resp dispatch.Response) {
	writeJSON(w, resp.Status, resp.Body)
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, nil)
}

func writeInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "internal error")
}
