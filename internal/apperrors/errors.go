// Package apperrors maps domain failures onto HTTP responses.
package apperrors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/synergysphere/server/pkg/logger"
)

// ValidationError is returned for bad input. Fields maps a field name to a message.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(formatString string, a ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(formatString, a...)}
}

// WithField adds a field message and returns the receiver.
func (e *ValidationError) WithField(field, message string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
	return e
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}

type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

func NewForbiddenError(formatString string, a ...interface{}) *ForbiddenError {
	return &ForbiddenError{Message: fmt.Sprintf(formatString, a...)}
}

type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

func NewUnauthorizedError(formatString string, a ...interface{}) *UnauthorizedError {
	return &UnauthorizedError{Message: fmt.Sprintf(formatString, a...)}
}

// UpstreamError wraps a failure of a third-party service.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func NewUpstreamError(service string, err error) *UpstreamError {
	return &UpstreamError{Service: service, Err: err}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// StatusCode returns the HTTP status for err. Unknown errors are 500.
func StatusCode(err error) int {
	var (
		validation   *ValidationError
		notFound     *NotFoundError
		forbidden    *ForbiddenError
		unauthorized *UnauthorizedError
		upstream     *UpstreamError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteError writes err as JSON. Internal details of 500s are logged, not returned.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	body := errorBody{Error: err.Error()}

	var validation *ValidationError
	if errors.As(err, &validation) {
		body.Fields = validation.Fields
	}
	if status == http.StatusInternalServerError {
		logger.Log.WithError(err).Error("Request failed")
		body.Error = "Internal server error"
	}

	WriteJSON(w, status, body)
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}
