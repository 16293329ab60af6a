package handler

import (
	"encoding/json"
	"net/http"
	"strings"
)

// errorResponse is the JSON error envelope returned by every endpoint.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeNotFound returns 404 with a human-readable message. The caller supplies
// the message (e.g. "appointment not found") because the handler is the layer
// that knows what was being looked up.
func writeNotFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: errorDetail{Code: "not_found", Message: message}})
}

// writeValidation returns 422 with the human-readable part of a wrapped
// domain.ErrValidation error.
func writeValidation(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: errorDetail{Code: "validation_error", Message: unwrapMessage(err)}})
}

// writeBadRequest returns 422 for a request rejected before reaching the
// service layer (e.g. missing or malformed body).
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: errorDetail{Code: "validation_error", Message: message}})
}

// writeInternal returns 500 with an opaque message; details go to the logs,
// not the client.
func writeInternal(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorDetail{Code: "internal_error", Message: "internal server error"}})
}

// unwrapMessage extracts the human-readable part from a wrapped sentinel error.
// e.g. "service.AppointmentService.Save: validation error: missing required
// fields: route" → "missing required fields: route".
func unwrapMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if i := strings.LastIndex(msg, "validation error: "); i >= 0 {
		return msg[i+len("validation error: "):]
	}
	return msg
}
