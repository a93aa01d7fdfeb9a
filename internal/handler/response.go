package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	"lealta/internal/service"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code and the human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		zlog.Error().Err(err).Msg("failed to encode JSON response")
		return err
	}

	return nil
}

// WriteError writes a structured JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		zlog.Error().Err(err).Msg("failed to write error response")
	}
}

// WriteCreated writes a 201 Created response with the given data.
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteOK writes a 200 OK response with the given data.
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteValidationError writes a 400 with VALIDATION_ERROR code.
func WriteValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", message)
}

// WriteNotFoundError writes a 404 with RESOURCE_NOT_FOUND code.
func WriteNotFoundError(w http.ResponseWriter, resource, id string) {
	message := fmt.Sprintf("%s with ID %s not found", resource, id)
	WriteError(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", message)
}

// WriteInternalError writes a 500 without exposing internal details.
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
}

// WriteInvalidStateError writes a 409 with INVALID_STATE code.
func WriteInvalidStateError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "INVALID_STATE", message)
}

// WriteAlreadyRunningError writes a 409 with ALREADY_RUNNING code.
func WriteAlreadyRunningError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "ALREADY_RUNNING", message)
}

// HandleServiceError maps service and dispatch errors to HTTP responses.
func HandleServiceError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *service.NotFoundError:
		WriteNotFoundError(w, e.Resource, e.ID)
	case *service.ValidationError:
		WriteValidationError(w, e.Message)
	case *service.InvalidStateError:
		WriteInvalidStateError(w, e.Error())
	case *service.AlreadyRunningError:
		WriteAlreadyRunningError(w, e.Error())
	default:
		zlog.Error().Err(err).Msg("unhandled service error")
		WriteInternalError(w)
	}
}
