package gemini

import (
	"fmt"
	"net/http"
)

// ConfigurationError means the client cannot issue requests at all.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// TransportError is a non-success reply from the model endpoint. Body is the
// response body as sent; the genai backend rebuilds it from the SDK's decoded
// error, so JSON bodies come back re-encoded rather than byte for byte.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gemini API error %d: %s", e.Status, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *TransportError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// EmptyResponseError means the endpoint answered without any candidate text.
type EmptyResponseError struct{}

func (e *EmptyResponseError) Error() string { return "gemini returned an empty response" }

var errMissingKey = &ConfigurationError{Message: "GEMINI_API_KEY is not configured"}
