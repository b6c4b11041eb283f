package api

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/goliatone/go-credential-broker/core"
)

type errorBody struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError answers with the broker error taxonomy. Metadata passes through
// redaction before it leaves the process.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := core.MapError(err)
	status := core.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("broker request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"code", mapped.TextCode,
			"error", err.Error(),
		)
	}
	writeJSON(w, status, errorResponse{Error: errorBody{
		Code:     mapped.TextCode,
		Message:  mapped.Message,
		Metadata: core.RedactSensitiveMap(mapped.Metadata),
	}})
}
