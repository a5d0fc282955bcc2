package weatherstuff

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DeliveryErrorKind describes coarse-grained answer delivery failure classification.
type DeliveryErrorKind string

const (
	// DeliveryErrorKindRateLimited indicates platform-side rate limiting.
	DeliveryErrorKindRateLimited DeliveryErrorKind = "rate_limited"
	// DeliveryErrorKindTemporary indicates transient transport failure.
	DeliveryErrorKindTemporary DeliveryErrorKind = "temporary"
	// DeliveryErrorKindExpired indicates the inline query can no longer be answered.
	DeliveryErrorKindExpired DeliveryErrorKind = "expired"
	// DeliveryErrorKindPermanent indicates a rejected answer.
	DeliveryErrorKindPermanent DeliveryErrorKind = "permanent"
	// DeliveryErrorKindUnknown indicates unclassified failure.
	DeliveryErrorKindUnknown DeliveryErrorKind = "unknown"
)

// DeliveryError carries structured metadata for one failed inline answer.
type DeliveryError struct {
	// Kind classifies the failure.
	Kind DeliveryErrorKind
	// Platform identifies which destination platform produced the failure.
	Platform Platform
	// SinkID identifies which configured driver produced the failure when known.
	SinkID string
	// QueryID is the inline query that could not be answered.
	QueryID string
	// RetryAfter carries the platform's suggested delay for rate-limited failures.
	RetryAfter time.Duration
	// Code carries the platform RPC/status code when known.
	Code int
	// Type carries the platform error type token when known.
	Type string
	// Cause is the wrapped platform/transport error.
	Cause error
}

// Error returns one operator-readable failure summary.
func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}

	fields := make([]string, 0, 7)
	if kind := strings.TrimSpace(string(e.Kind)); kind != "" {
		fields = append(fields, "kind="+kind)
	}
	if platform := strings.TrimSpace(string(e.Platform)); platform != "" {
		fields = append(fields, "platform="+platform)
	}
	if sinkID := strings.TrimSpace(e.SinkID); sinkID != "" {
		fields = append(fields, "sink_id="+sinkID)
	}
	if queryID := strings.TrimSpace(e.QueryID); queryID != "" {
		fields = append(fields, "query_id="+queryID)
	}
	if e.RetryAfter > 0 {
		fields = append(fields, "retry_after="+e.RetryAfter.String())
	}
	if e.Code != 0 {
		fields = append(fields, fmt.Sprintf("code=%d", e.Code))
	}
	if errorType := strings.TrimSpace(e.Type); errorType != "" {
		fields = append(fields, "type="+errorType)
	}

	if len(fields) == 0 {
		if e.Cause == nil {
			return "delivery error"
		}
		return fmt.Sprintf("delivery error: %v", e.Cause)
	}

	if e.Cause == nil {
		return "delivery error: " + strings.Join(fields, " ")
	}
	return "delivery error: " + strings.Join(fields, " ") + ": " + e.Cause.Error()
}

// Unwrap returns the wrapped root cause.
func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// AsDeliveryError extracts one DeliveryError from wrapped error chains.
func AsDeliveryError(err error) (*DeliveryError, bool) {
	if err == nil {
		return nil, false
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr, true
	}

	return nil, false
}

// DeliveryErrorKindOf returns the classification of err, or
// DeliveryErrorKindUnknown when err carries no DeliveryError.
func DeliveryErrorKindOf(err error) DeliveryErrorKind {
	deliveryErr, ok := AsDeliveryError(err)
	if !ok || deliveryErr.Kind == "" {
		return DeliveryErrorKindUnknown
	}

	return deliveryErr.Kind
}
