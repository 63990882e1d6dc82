package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/domain"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logrus.WithError(err).Error("failed to encode JSON response")
		}
	}
}

// Error writes an error JSON response, using AppError status codes when available.
// A rejected credential also tells the client to drop its stored token.
func Error(w http.ResponseWriter, err error) {
	if appErr, ok := domain.AsAppError(err); ok {
		body := map[string]interface{}{"error": appErr.Message}
		if errors.Is(appErr, domain.ErrSessionExpired) {
			body["clearCredential"] = true
		}
		if appErr.Code >= http.StatusInternalServerError && appErr.Err != nil {
			logrus.WithError(appErr.Err).Warn(appErr.Message)
		}
		JSON(w, appErr.Code, body)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		JSON(w, http.StatusGatewayTimeout, map[string]string{"error": "request timed out"})
		return
	}
	logrus.WithError(err).Error("unhandled error")
	JSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

// DecodeJSON decodes a JSON request body into the given struct.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return domain.ErrBadRequest("invalid JSON body")
	}
	return nil
}
