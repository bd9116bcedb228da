package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// apiError is the uniform error envelope every endpoint answers with.
type apiError struct {
	Error string `json:"error"`
}

func errorBody(msg string) apiError {
	return apiError{Error: msg}
}

// writeJSON sends v as the response body with the given status. An
// encoding failure is only logged, the status line is already on the
// wire by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", slog.String("error", err.Error()))
	}
}
