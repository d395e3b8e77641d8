package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/product-search-assistant/internal/core/domain"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestQueryPathMakesSingleAttempt(t *testing.T) {
	cfg := Config{
		RetryMaxAttempts:    5,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     1 * time.Millisecond,
		BreakerEnabled:      false,
	}
	exec := NewExecutor(cfg.QueryPath())

	attempts := 0
	_, err := Call(context.Background(), exec, "embed_query", func(context.Context) ([]float32, error) {
		attempts++
		return nil, errors.New("upstream down")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestCallReturnsValue(t *testing.T) {
	exec := NewExecutor(Config{BreakerEnabled: true})
	got, err := Call(context.Background(), exec, "answer", func(context.Context) (string, error) {
		return "ok", nil
	}, nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != "ok" {
		t.Fatalf("expected ok, got %q", got)
	}
}

func TestStateChangeHookReceivesTransitions(t *testing.T) {
	var transitions []string
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		BreakerEnabled:          true,
		BreakerMinRequests:      1,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
		OnStateChange: func(operation, from, to string) {
			transitions = append(transitions, operation+":"+from+"->"+to)
		},
	})

	_ = exec.Execute(context.Background(), "rerank", func(context.Context) error {
		return errors.New("boom")
	}, nil)

	if len(transitions) != 1 || transitions[0] != "rerank:closed->open" {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
}

func TestUpstreamErrorMarksTransportFailures(t *testing.T) {
	statusErr := &HTTPStatusError{Service: "qdrant", Operation: "query", StatusCode: 503, Status: "503 Service Unavailable"}
	if err := UpstreamError("query", statusErr); !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream kind, got %v", err)
	}
	if err := UpstreamError("query", context.DeadlineExceeded); !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream kind for deadline, got %v", err)
	}
	plain := errors.New("decode response")
	if err := UpstreamError("query", plain); domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("decode failure must not be upstream, got %v", err)
	}
}

func TestClassifyHTTPErrorStatusCodes(t *testing.T) {
	retry := ClassifyHTTPError(&HTTPStatusError{StatusCode: 429})
	if !retry.Retryable || !retry.RecordFailure {
		t.Fatalf("expected 429 to be retryable, got %+v", retry)
	}
	perm := ClassifyHTTPError(&HTTPStatusError{StatusCode: 400})
	if perm.Retryable || perm.RecordFailure {
		t.Fatalf("expected 400 to be permanent, got %+v", perm)
	}
}
