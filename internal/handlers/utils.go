package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vidhub/apiserver/internal/services"
	"go.uber.org/zap"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

// Response is the envelope of every successful reply.
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// ErrorResponse is the envelope of every failed reply. Errors lists the
// failing fields of a validation error.
type ErrorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Success bool              `json:"success"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextSubjectKey, userID)
}

func userIDFromContext(ctx context.Context) (string, error) {
	subject, ok := ctx.Value(contextSubjectKey).(string)
	if !ok || subject == "" {
		return "", errors.New("missing subject")
	}
	return subject, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeSuccess(w http.ResponseWriter, status int, data any, message string) {
	if data == nil {
		data = struct{}{}
	}
	writeJSON(w, status, Response{Code: status, Data: data, Message: message, Success: true})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Code: status, Message: message})
}

// writeServiceError maps a service error onto its status code. Unexpected
// errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		status = http.StatusUnauthorized
	}

	if status == http.StatusInternalServerError {
		logger.Error(svcErr.Message, zap.Error(err))
	} else if svcErr.Err != nil {
		logger.Debug(svcErr.Message, zap.Int("status", status), zap.Error(svcErr.Err))
	}

	writeJSON(w, status, ErrorResponse{Code: status, Message: svcErr.Message, Errors: svcErr.Fields})
}

// Healthz reports that the process is serving requests.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"}, "ok")
}
