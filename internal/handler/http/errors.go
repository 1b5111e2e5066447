package httphandler

import (
	"errors"
	"net/http"

	"github.com/webitel/im-private-chat/internal/service"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps service sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrUnknownUser):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *RESTHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("HTTP_REQUEST_FAILED", "path", r.URL.Path, "status", status, "err", err)
	} else {
		h.logger.Debug("HTTP_REQUEST_REJECTED", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, &ErrorResponse{Error: err.Error()})
}
