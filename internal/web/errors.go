package web

// errors.go provides unified error responses for the API.
//
// Every error is logged with its technical details and the request ID, then
// returned to the client as a user-friendly message with a support code and
// a suggested action (see restore.MapError).

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/classifieds/internal/logging"
	"github.com/JonMunkholm/classifieds/internal/restore"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status of an engine error.
func statusFor(err error) int {
	var verr *restore.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, restore.ErrRestoreInProgress):
		return http.StatusConflict
	case errors.Is(err, restore.ErrRestoreTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, restore.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, restore.ErrNoCheckpoint):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user-facing JSON form.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := restore.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	writeJSONStatus(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
