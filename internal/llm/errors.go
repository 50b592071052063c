package llm

import "fmt"

// ProviderError is returned when an LLM provider rejects or fails a request.
type ProviderError struct {
	Provider string
	Status   int    // HTTP status code, 0 when unknown
	Code     string // provider error code, e.g. "insufficient_quota"
	Type     string // provider error type, e.g. "invalid_request_error"
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	code := e.Code
	if code == "" {
		code = e.Type
	}
	switch {
	case e.Status > 0 && code != "":
		return fmt.Sprintf("%s: %d %s: %s", e.Provider, e.Status, code, e.Message)
	case e.Status > 0:
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }
