// Package errors provides structured error handling for scanhud operations.
// It defines error codes, error types, and provides utilities for creating
// and handling errors with context and structured information.
package errors

import (
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Request errors (pull path).
	CodeRequestRejected    ErrorCode = "REQUEST_REJECTED"
	CodeNetworkUnreachable ErrorCode = "NETWORK_UNREACHABLE"
	CodeNotFound           ErrorCode = "NOT_FOUND"

	// Stream errors (push path).
	CodeTransportLost    ErrorCode = "TRANSPORT_LOST"
	CodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
)

// RequestError represents an error from a REST call against the scan backend.
// For rejected requests the Message carries the server's error string verbatim
// so it can be surfaced to the user unchanged.
type RequestError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
	Endpoint   string
	Cause      error
	Context    map[string]interface{}
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("[%s] %s (endpoint: %s)", e.Code, e.Message, e.Endpoint)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *RequestError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *RequestError) WithContext(key string, value interface{}) *RequestError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewRequestError creates a new request error with the specified code and message.
func NewRequestError(code ErrorCode, message string) *RequestError {
	return &RequestError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewRequestErrorWithEndpoint creates a request error for a specific endpoint.
func NewRequestErrorWithEndpoint(code ErrorCode, message, endpoint string) *RequestError {
	return &RequestError{
		Code:     code,
		Message:  message,
		Endpoint: endpoint,
		Context:  make(map[string]interface{}),
	}
}

// WrapRequestError wraps an existing error as a request error.
func WrapRequestError(code ErrorCode, message string, err error) *RequestError {
	return &RequestError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// WrapRequestErrorWithEndpoint wraps an error with endpoint information.
func WrapRequestErrorWithEndpoint(code ErrorCode, message, endpoint string, err error) *RequestError {
	return &RequestError{
		Code:     code,
		Message:  message,
		Endpoint: endpoint,
		Cause:    err,
		Context:  make(map[string]interface{}),
	}
}

// StreamError represents an error on the event channel (push path).
type StreamError struct {
	Code    ErrorCode
	Message string
	URL     string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("[%s] %s (url: %s)", e.Code, e.Message, e.URL)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// NewStreamError creates a new stream error.
func NewStreamError(code ErrorCode, message string) *StreamError {
	return &StreamError{
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// WrapStreamError wraps an existing error as a stream error.
func WrapStreamError(code ErrorCode, message string, err error) *StreamError {
	return &StreamError{
		Code:    code,
		Message: message,
		Cause:   err,
		Context: make(map[string]interface{}),
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	switch e := err.(type) {
	case *RequestError:
		return e.Code == code
	case *StreamError:
		return e.Code == code
	case *ConfigError:
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	switch e := err.(type) {
	case *RequestError:
		return e.Code
	case *StreamError:
		return e.Code
	case *ConfigError:
		return e.Code
	}
	return CodeUnknown
}

// IsRetryable determines if an error indicates a retryable condition.
func IsRetryable(err error) bool {
	code := GetCode(err)
	switch code {
	case CodeTimeout, CodeNetworkUnreachable, CodeTransportLost:
		return true
	default:
		return false
	}
}

// IsFatal determines if an error indicates a fatal condition that should stop execution.
func IsFatal(err error) bool {
	code := GetCode(err)
	switch code {
	case CodeConfiguration, CodeValidation:
		return true
	default:
		return false
	}
}

// UserMessage returns the text that should be surfaced to the user for an
// error. Rejected requests expose the server's message verbatim; everything
// else falls back to the formatted error string.
func UserMessage(err error) string {
	if e, ok := err.(*RequestError); ok && e.Code == CodeRequestRejected {
		return e.Message
	}
	return err.Error()
}

// Common error creation functions

// ErrRequestRejected creates an error for a structured non-success response.
// The message is the server's error string and must be preserved verbatim.
func ErrRequestRejected(endpoint, message string, statusCode int) *RequestError {
	e := NewRequestErrorWithEndpoint(CodeRequestRejected, message, endpoint)
	e.StatusCode = statusCode
	return e
}

// ErrNetworkUnreachable creates an error for requests that failed before a response.
func ErrNetworkUnreachable(endpoint string, err error) *RequestError {
	return WrapRequestErrorWithEndpoint(CodeNetworkUnreachable, "Request failed before a response", endpoint, err)
}

// ErrRequestTimeout creates an error for requests that exceeded their deadline.
func ErrRequestTimeout(endpoint string, err error) *RequestError {
	return WrapRequestErrorWithEndpoint(CodeTimeout, "Request timed out", endpoint, err)
}

// ErrTransportLost creates an error for a closed or failed event channel.
func ErrTransportLost(url string, err error) *StreamError {
	e := WrapStreamError(CodeTransportLost, "Event channel lost", err)
	e.URL = url
	return e
}

// ErrMalformedPayload creates an error for undecodable event payloads.
func ErrMalformedPayload(what string, err error) *StreamError {
	return WrapStreamError(CodeMalformedPayload, fmt.Sprintf("Malformed %s payload", what), err)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrConfigMissing creates an error for missing required configuration.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration, "Required configuration field missing", field, nil)
}
