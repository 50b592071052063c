package taskexec

import (
	"errors"

	"github.com/soyeahso/taskweaver/internal/llm"
)

// ErrInvalidArgument is returned for calls that break the operation contract
// (missing agent, empty template or input). Provider failures never use it.
var ErrInvalidArgument = errors.New("taskexec: invalid argument")

// ErrorKind classifies a failed provider call.
type ErrorKind string

const (
	KindQuotaExceeded  ErrorKind = "QUOTA_EXCEEDED"
	KindInvalidAPIKey  ErrorKind = "INVALID_API_KEY"
	KindRateLimit      ErrorKind = "RATE_LIMIT"
	KindContextTooLong ErrorKind = "CONTEXT_TOO_LONG"
	KindUnknown        ErrorKind = "UNKNOWN_ERROR"
)

const unexpectedErrorMessage = "An unexpected error occurred"

var kindMessages = map[ErrorKind]string{
	KindQuotaExceeded:  "OpenAI API quota exceeded. Please check your billing settings.",
	KindInvalidAPIKey:  "Invalid OpenAI API key. Please check your configuration.",
	KindRateLimit:      "Rate limit exceeded. Please try again later.",
	KindContextTooLong: "Input text is too long for the selected model.",
}

var codeKinds = map[string]ErrorKind{
	"insufficient_quota":      KindQuotaExceeded,
	"invalid_api_key":         KindInvalidAPIKey,
	"rate_limit_exceeded":     KindRateLimit,
	"context_length_exceeded": KindContextTooLong,
}

// ServiceError is the failure half of a Result.
type ServiceError struct {
	Kind    ErrorKind `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Classify maps an error from a provider call onto the error taxonomy.
func Classify(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}

	details := err.Error()
	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		kind, ok := codeKinds[pe.Code]
		if !ok {
			kind, ok = codeKinds[pe.Type]
		}
		if ok {
			return &ServiceError{Kind: kind, Message: kindMessages[kind], Details: details}
		}
		if pe.Message != "" {
			return &ServiceError{Kind: KindUnknown, Message: pe.Message, Details: details}
		}
	}

	msg := details
	if msg == "" {
		msg = unexpectedErrorMessage
	}
	return &ServiceError{Kind: KindUnknown, Message: msg, Details: details}
}
