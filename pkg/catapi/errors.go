package catapi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of fetch failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and requests blocked by the rate limit gate.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors, timeouts and truncated bodies.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents unparsable bodies or pagination headers.
	ErrorClassDecode ErrorClass = "decode"
)

// Common errors returned by the client.
var (
	// ErrRateLimited is returned when the shared rate limit gate blocks a request.
	ErrRateLimited = errors.New("request blocked: rate limit critical")

	// ErrMissingPaginationCount is returned when a response has no pagination-count header.
	ErrMissingPaginationCount = errors.New("pagination-count header missing")
)

// APIError is a failed TheCatAPI request tagged with its ErrorClass.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catapi %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("catapi %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassOf returns the ErrorClass carried by err, or "" if err is not an *APIError.
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ""
}

// classifyStatus maps a non-success HTTP status to an ErrorClass.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	case statusCode < 200 || statusCode >= 300:
		// 1xx and unfollowed 3xx are not usable search results.
		return ErrorClassClient
	default:
		return ""
	}
}
