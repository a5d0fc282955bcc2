package weatherstuff

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestAsDeliveryErrorPreservesUnwrap(t *testing.T) {
	t.Parallel()

	rootCause := errors.New("rpc failed")
	err := fmt.Errorf(
		"outer wrapper: %w",
		&DeliveryError{
			Kind:       DeliveryErrorKindExpired,
			Platform:   PlatformTelegram,
			SinkID:     "tg-main",
			QueryID:    "42",
			RetryAfter: 3 * time.Second,
			Code:       400,
			Type:       "QUERY_ID_INVALID",
			Cause:      rootCause,
		},
	)

	deliveryErr, ok := AsDeliveryError(err)
	if !ok {
		t.Fatal("AsDeliveryError = false, want true")
	}
	if deliveryErr.Kind != DeliveryErrorKindExpired {
		t.Fatalf("kind = %s, want %s", deliveryErr.Kind, DeliveryErrorKindExpired)
	}
	if !errors.Is(err, rootCause) {
		t.Fatalf("errors.Is(err, rootCause) = false, want true (err=%v)", err)
	}
	if !strings.Contains(err.Error(), "query_id=42") {
		t.Fatalf("error text %q missing query id", err.Error())
	}
}

func TestDeliveryErrorKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want DeliveryErrorKind
	}{
		{name: "nil", err: nil, want: DeliveryErrorKindUnknown},
		{name: "plain", err: errors.New("plain"), want: DeliveryErrorKindUnknown},
		{
			name: "wrapped rate limit",
			err:  fmt.Errorf("wrap: %w", &DeliveryError{Kind: DeliveryErrorKindRateLimited}),
			want: DeliveryErrorKindRateLimited,
		},
		{name: "empty kind", err: &DeliveryError{}, want: DeliveryErrorKindUnknown},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := DeliveryErrorKindOf(testCase.err); got != testCase.want {
				t.Fatalf("DeliveryErrorKindOf() = %s, want %s", got, testCase.want)
			}
		})
	}
}
