package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

func TestClassifyPublishError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "connection closed", err: fmt.Errorf("publish: %w", nats.ErrConnectionClosed), retryable: true, record: true},
		{name: "reconnecting", err: nats.ErrConnectionReconnecting, retryable: true, record: true},
		{name: "canceled", err: context.Canceled},
		{name: "max payload", err: nats.ErrMaxPayload},
		{name: "unknown", err: errors.New("boom"), record: true},
	}
	for _, tc := range cases {
		class := classifyPublishError(tc.err)
		if class.Retryable != tc.retryable || class.RecordFailure != tc.record {
			t.Fatalf("%s: unexpected classification %+v", tc.name, class)
		}
	}
}

func TestPublishErrorKinds(t *testing.T) {
	if err := publishError(fmt.Errorf("publish: %w", nats.ErrTimeout)); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	if err := publishError(nats.ErrBadSubject); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input kind, got %v", err)
	}
	other := errors.New("boom")
	if err := publishError(other); domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, other) {
		t.Fatalf("expected unknown error untouched, got %v", err)
	}
	if publishError(nil) != nil {
		t.Fatalf("expected nil")
	}
}
