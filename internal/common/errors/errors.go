package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ErrorCode string

const (
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeMalformedInput       ErrorCode = "MALFORMED_INPUT"

	ErrCodeResolutionFailed ErrorCode = "RESOLUTION_FAILED"

	ErrCodeTransportFailed ErrorCode = "TRANSPORT_FAILED"
	ErrCodeUnknownCommand  ErrorCode = "UNKNOWN_COMMAND"

	ErrCodeSessionNotReady    ErrorCode = "SESSION_NOT_READY"
	ErrCodeProvisioningFailed ErrorCode = "PROVISIONING_FAILED"
	ErrCodePostFailed         ErrorCode = "POST_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the error shape every component returns across a
// boundary. Retryable is informational: nothing in the pipeline retries.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns e after attaching key=value.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewAuthenticationFailedError(boundary string) *StandardError {
	return newError(ErrCodeAuthenticationFailed, "Authentication failed",
		fmt.Sprintf("boundary: %s", boundary), false, nil)
}

func NewMalformedInputError(field, details string) *StandardError {
	return newError(ErrCodeMalformedInput, "Malformed input",
		fmt.Sprintf("field: %s, %s", field, details), false, nil)
}

func NewResolutionFailedError(profileURL string, err error) *StandardError {
	return newError(ErrCodeResolutionFailed, "Character image could not be resolved",
		fmt.Sprintf("profile: %s, error: %v", profileURL, err), true, err)
}

func NewTransportFailedError(stage string, err error) *StandardError {
	return newError(ErrCodeTransportFailed, "Transport failure",
		fmt.Sprintf("stage: %s, error: %v", stage, err), true, err)
}

func NewUnknownCommandError(command string) *StandardError {
	return newError(ErrCodeUnknownCommand, "Unrecognized command",
		fmt.Sprintf("command: %q", command), false, nil)
}

func NewSessionNotReadyError() *StandardError {
	return newError(ErrCodeSessionNotReady, "Workspace session has not resolved its guild and category",
		"", true, nil)
}

func NewProvisioningFailedError(channelName string, err error) *StandardError {
	return newError(ErrCodeProvisioningFailed, "Channel provisioning failed",
		fmt.Sprintf("channel: %s, error: %v", channelName, err), true, err)
}

func NewPostFailedError(posted, total int, err error) *StandardError {
	return newError(ErrCodePostFailed, "Posting to channel failed",
		fmt.Sprintf("posted %d of %d messages, error: %v", posted, total, err), true, err).
		WithMetadata("posted", posted).
		WithMetadata("total", total)
}

// FromCode rebuilds a StandardError from a code and message that crossed a
// process boundary as plain strings.
func FromCode(code, message string) *StandardError {
	c := ErrorCode(code)
	if c == "" {
		c = ErrCodeInternal
	}
	return newError(c, message, "", IsRetryableErrorCode(c), nil)
}

// Normalize returns err as a *StandardError, wrapping unknown errors as
// INTERNAL_ERROR.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// CodeOf returns the code carried by err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return Normalize(err).Code
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}

func IsRetryableErrorCode(code ErrorCode) bool {
	switch code {
	case ErrCodeResolutionFailed,
		ErrCodeTransportFailed,
		ErrCodeSessionNotReady,
		ErrCodeProvisioningFailed,
		ErrCodePostFailed:
		return true
	default:
		return false
	}
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "AUTHENTICATION"):
		return "AUTH"
	case strings.Contains(codeStr, "MALFORMED") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "SESSION") || strings.Contains(codeStr, "PROVISIONING") || strings.Contains(codeStr, "POST"):
		return "DISCORD"
	case strings.Contains(codeStr, "RESOLUTION"):
		return "ARMORY"
	case strings.Contains(codeStr, "TRANSPORT") || strings.Contains(codeStr, "COMMAND"):
		return "RELAY"
	default:
		return "OTHER"
	}
}
