package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   1.0,
	}
}

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return nil
	}, fastConfig())
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastConfig())
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsAtMaxRetries(t *testing.T) {
	calls := 0
	sentinel := errors.New("always fails")
	err := Do(context.Background(), func() error {
		calls++
		return sentinel
	}, fastConfig())
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the last error to propagate, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3 (MaxRetries)", calls)
	}
}

func TestDoHonorsRetryIf(t *testing.T) {
	nonRetryable := errors.New("do not retry me")
	calls := 0
	cfg := fastConfig()
	cfg.RetryIf = func(error) bool { return false }

	err := Do(context.Background(), func() error {
		calls++
		return nonRetryable
	}, cfg)
	if !errors.Is(err, nonRetryable) {
		t.Fatalf("expected immediate propagation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	}, fastConfig())
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if calls > 2 {
		t.Fatalf("expected cancellation to cut the loop short, got %d calls", calls)
	}
}

func TestDoWithResultReturnsValueOnSuccess(t *testing.T) {
	result, err := DoWithResult(context.Background(), func() (int, error) {
		return 42, nil
	}, fastConfig())
	if err != nil {
		t.Fatalf("DoWithResult: %v", err)
	}
	if result != 42 {
		t.Fatalf("result = %d, want 42", result)
	}
}

func TestCancelConfigIsFixedInterval(t *testing.T) {
	cfg := CancelConfig()
	if cfg.MaxRetries != 3 {
		t.Fatalf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.InitialDelay != time.Second || cfg.MaxDelay != time.Second {
		t.Fatalf("expected a fixed one-second interval, got initial=%v max=%v", cfg.InitialDelay, cfg.MaxDelay)
	}
	if cfg.Multiplier != 1.0 || cfg.JitterFactor != 0 {
		t.Fatalf("expected no growth or jitter, got multiplier=%v jitter=%v", cfg.Multiplier, cfg.JitterFactor)
	}
}

func TestRetryIfNotContextSkipsContextErrors(t *testing.T) {
	if RetryIfNotContext(context.Canceled) {
		t.Fatal("expected context.Canceled to be non-retryable")
	}
	if RetryIfNotContext(context.DeadlineExceeded) {
		t.Fatal("expected context.DeadlineExceeded to be non-retryable")
	}
	if !RetryIfNotContext(errors.New("connection refused")) {
		t.Fatal("expected an ordinary error to be retryable")
	}
}
