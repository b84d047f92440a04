package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoJSONFound is returned when the response text contains no extractable JSON
	ErrNoJSONFound = errors.New("no JSON object found in model response")

	// ErrMalformedJSON is returned when the extracted candidate fails to parse
	ErrMalformedJSON = errors.New("model response contains malformed JSON")

	// ErrMissingFields is returned when the parsed object lacks a required key
	ErrMissingFields = errors.New("model response is missing required fields")

	// ErrProviderRequestFailed is returned when the provider or proxy cannot be reached
	// or answers with a non-2xx status
	ErrProviderRequestFailed = errors.New("analysis provider request failed")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrRateLimited is returned when rate limit is exceeded
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")
)

// MalformedJSONError carries the candidate that failed to parse.
// The candidate is for logs only.
type MalformedJSONError struct {
	Candidate string
	Cause     error
}

func (e *MalformedJSONError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMalformedJSON, e.Cause)
}

func (e *MalformedJSONError) Unwrap() []error {
	return []error{ErrMalformedJSON, e.Cause}
}

// MissingFieldsError lists the required keys that were absent or not strings
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingFields, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Unwrap() error {
	return ErrMissingFields
}

// UserMessage maps an error to the single message shown to end users
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "Please provide both a product image and a name."
	case errors.Is(err, ErrRateLimited):
		return "Too many requests. Please wait a moment and try again."
	case errors.Is(err, ErrNoJSONFound),
		errors.Is(err, ErrMalformedJSON),
		errors.Is(err, ErrMissingFields):
		return "Failed to get analysis from the AI. The response might be malformed."
	case errors.Is(err, ErrProviderRequestFailed):
		return "Failed to get analysis from the AI. The service is unavailable."
	default:
		return "Failed to analyze the product. Please try again."
	}
}
