package carrier

import (
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of carrier API errors, used for
// observability. The orchestrator does not act on the class: every failed
// item retries the same way regardless of what failed.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses (not found, bad key).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network and timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassPayload represents unusable response bodies.
	ErrorClassPayload ErrorClass = "payload"
)

// classifyStatus categorizes a non-200 HTTP status.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassNetwork
	}
}

// reasonForStatus maps a non-200 HTTP status to a per-item failure reason.
func reasonForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusNotFound:
		return "tracking number not found"
	case http.StatusUnauthorized:
		return "invalid API key"
	case http.StatusTooManyRequests:
		return "carrier rate limit exceeded"
	default:
		return fmt.Sprintf("carrier request failed: status %d", statusCode)
	}
}
