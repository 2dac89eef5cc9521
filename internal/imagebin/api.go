package imagebin

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// internalErrorMessage is the generic body for server-side failures. Internal
// error text is never echoed to clients verbatim.
const internalErrorMessage = "We encountered an internal error. Please try again."

type errorResponse struct {
	Error string `json:"error"`
}

type removeResponse struct {
	ID string `json:"id"`
}

// writeJSONResponse encodes v as JSON and writes it with the given status.
func writeJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Encode JSON response", "err", err)
	}
}

// writeJSONError writes a minimal JSON error body.
func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSONResponse(w, status, errorResponse{Error: message})
}
