package aggregator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Provider failures are classified exactly once, here at the client boundary.
// Callers branch with errors.As on the three concrete types instead of
// re-inspecting response bodies.

// TransientError is a provider failure a retry may resolve: institution
// outage, rate limiting, provider-internal error.
type TransientError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient provider error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// PermanentError is a provider failure that requires user action, typically
// reconnecting the institution. It is never retried.
type PermanentError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent provider error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// MalformedResponseError is a provider response that could not be decoded.
type MalformedResponseError struct {
	StatusCode int
	Cause      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed provider response (status %d): %v", e.StatusCode, e.Cause)
}

func (e *MalformedResponseError) Unwrap() error { return e.Cause }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// transientCodes are the provider error codes worth retrying.
var transientCodes = map[string]struct{}{
	"INSTITUTION_DOWN":            {},
	"INSTITUTION_NOT_RESPONDING":  {},
	"RATE_LIMIT_EXCEEDED":         {},
	"INTERNAL_SERVER_ERROR":       {},
	"PRODUCT_NOT_READY":           {},
	"TRANSACTIONS_SYNC_IN_FLIGHT": {},
}

// classifyError turns a non-200 provider response into exactly one of the
// tagged error types.
func classifyError(statusCode int, body []byte) error {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err != nil || ae.ErrorCode == "" {
		return &MalformedResponseError{
			StatusCode: statusCode,
			Cause:      fmt.Errorf("undecodable error body: %s", string(body)),
		}
	}

	if _, ok := transientCodes[ae.ErrorCode]; ok || statusCode == http.StatusTooManyRequests {
		return &TransientError{Code: ae.ErrorCode, Message: ae.ErrorMessage, StatusCode: statusCode}
	}

	return &PermanentError{Code: ae.ErrorCode, Message: ae.ErrorMessage, StatusCode: statusCode}
}
