package api

import (
	"encoding/json"
	"net/http"

	"github.com/llmwui/llm-wui/internal/core"
)

type envelope struct {
	Status   core.Status `json:"status"`
	Response interface{} `json:"response,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func OK(w http.ResponseWriter, v interface{}) {
	JSON(w, http.StatusOK, envelope{Status: core.StatusOK, Response: v})
}

// Fail writes an error envelope. The status string is what clients branch on.
func Fail(w http.ResponseWriter, httpStatus int, status core.Status, message string) {
	JSON(w, httpStatus, envelope{Status: status, Error: message})
}

// httpStatusFor maps a core status to the HTTP code it is reported with.
func httpStatusFor(s core.Status) int {
	switch s {
	case core.StatusNotFound:
		return http.StatusNotFound
	case core.StatusInvalid:
		return http.StatusBadRequest
	case core.StatusUpstreamUnavailable, core.StatusIncompleteStream:
		return http.StatusBadGateway
	case core.StatusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
