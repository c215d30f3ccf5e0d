package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/quickcal/quickcal-server-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error string              `json:"error"`
	Code  apperrors.ErrorCode `json:"code"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	WriteJSON(w, statusFromCode(appErr.Code), ErrorResponse{
		Error: appErr.Message,
		Code:  appErr.Code,
	})
}

func statusFromCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeInvalidIndex,
		apperrors.ErrCodeUnknownAccount,
		apperrors.ErrCodeNoAccounts,
		apperrors.ErrCodeInvalidState:
		return http.StatusBadRequest
	case apperrors.ErrCodeExternal,
		apperrors.ErrCodeExtractionExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
