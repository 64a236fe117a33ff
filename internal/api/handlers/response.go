package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/asaCurry/prescriber-point-sub001/internal/infrastructure/observability"
	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithAppError maps an error's AppError type onto an HTTP status.
// Internal details are logged, never returned.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	message := "internal server error"

	var breakerOpen *apperrors.BreakerOpenError
	switch {
	case errors.As(err, &breakerOpen):
		message = breakerOpen.Message
		w.Header().Set("Retry-After", strconv.Itoa(int(breakerOpen.RetryAfter.Seconds())+1))
	case status < http.StatusInternalServerError:
		message = messageOf(err)
	case status == http.StatusBadGateway:
		message = "upstream service error"
	}

	logger := observability.LoggerFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	respondWithError(w, status, message)
}

func statusForError(err error) int {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrorTypeUnavailable, apperrors.ErrorTypeRateLimited:
		return http.StatusServiceUnavailable
	case apperrors.ErrorTypeTransient, apperrors.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func messageOf(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// boolParam reads a boolean query parameter; absent or malformed values are false.
func boolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
