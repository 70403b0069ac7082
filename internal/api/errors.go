package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kenneth/redaction-gateway/internal/redaction"
	"github.com/kenneth/redaction-gateway/internal/session"
	"github.com/kenneth/redaction-gateway/internal/store"
)

// APIError represents an API error response.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: %s - %s", e.Code, e.Message)
}

// WriteJSON writes the error response as a JSON envelope.
func (e *APIError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus)

	if err := json.NewEncoder(w).Encode(e); err != nil {
		// Fallback to plain text if JSON encoding fails
		http.Error(w, e.Message, e.HTTPStatus)
	}
}

// TranslateError maps service errors onto the API error envelope.
//
// The mapping is deliberately coarse on decryption failures: a wrong key
// reveals nothing beyond "decryption failed", and an unknown document ID
// reveals nothing beyond "not found".
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrInvalidKeyFormat):
		return ErrInvalidKeyFormat
	case errors.Is(err, session.ErrDecryptionFailed):
		return ErrDecryptionFailed
	case errors.Is(err, session.ErrReconstructionFailed):
		return &APIError{
			Code:       "ReconstructionFailed",
			Message:    "The document could not be reconstructed from the supplied artifact.",
			HTTPStatus: http.StatusInternalServerError,
		}
	case errors.Is(err, store.ErrStoreUnavailable):
		return ErrStoreUnavailable
	}

	var engineErr *redaction.EngineError
	if errors.As(err, &engineErr) {
		return &APIError{
			Code:       "EngineFailure",
			Message:    fmt.Sprintf("The %s redaction engine failed to process the document.", engineErr.EngineMode),
			HTTPStatus: http.StatusInternalServerError,
		}
	}

	return &APIError{
		Code:       "InternalError",
		Message:    "We encountered an internal error. Please try again.",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Predefined API errors
var (
	ErrInvalidRequest = &APIError{
		Code:       "InvalidRequest",
		Message:    "Invalid Request",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingFile = &APIError{
		Code:       "InvalidRequest",
		Message:    "A document upload is required in the 'file' field.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidSeverity = &APIError{
		Code:       "InvalidRequest",
		Message:    "The 'severity' field must be an integer between 0 and 100.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrSessionNotFound = &APIError{
		Code:       "SessionNotFound",
		Message:    "No session exists for the specified document ID.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInvalidKeyFormat = &APIError{
		Code:       "InvalidKeyFormat",
		Message:    "The supplied decryption key is not a valid session key.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrDecryptionFailed = &APIError{
		Code:       "DecryptionFailed",
		Message:    "The supplied key cannot decrypt this session.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrStoreUnavailable = &APIError{
		Code:       "StoreUnavailable",
		Message:    "The session store is unavailable. Please try again.",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrMethodNotAllowed = &APIError{
		Code:       "MethodNotAllowed",
		Message:    "The specified method is not allowed against this resource.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrRateLimited = &APIError{
		Code:       "RateLimited",
		Message:    "Too many requests. Please slow down.",
		HTTPStatus: http.StatusTooManyRequests,
	}
)
