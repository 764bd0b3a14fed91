package eventsync

import (
	"errors"
	"fmt"
)

// Event construction errors.
var (
	ErrResourceNotFound = errors.New("resource not found")
	ErrInvalidEventType = errors.New("invalid event type")
	ErrFailureNotFound  = errors.New("sync failure not found")
)

// Delivery errors.
var (
	ErrNetworkFailure     = errors.New("network failure")
	ErrDeliveryTimeout    = errors.New("delivery timed out")
	ErrNonSuccessStatus   = errors.New("non-success status")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// DeliveryError describes a failed delivery to a single webhook endpoint.
type DeliveryError struct {
	Endpoint   string
	StatusCode int
	Kind       error
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("deliver to %s: %v: status %d", maskURL(e.Endpoint), e.Kind, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("deliver to %s: %v: %v", maskURL(e.Endpoint), e.Kind, e.Err)
	}
	return fmt.Sprintf("deliver to %s: %v", maskURL(e.Endpoint), e.Kind)
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetryable returns true: every delivery failure is retried until attempts run out.
func (e *DeliveryError) IsRetryable() bool { return true }

// maskURL hides most of the URL for logging; webhook URLs often embed secrets.
func maskURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}
