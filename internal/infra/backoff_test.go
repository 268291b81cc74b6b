package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"autobay/internal/domain"
)

func TestBackoff_Sequence(t *testing.T) {
	p := NewBackoff(5*time.Second, 60*time.Second)
	seq := p.Sequence()

	want := []time.Duration{
		10 * time.Second, // 5s * 2^1
		20 * time.Second,
		40 * time.Second,
		60 * time.Second, // capped
		60 * time.Second,
		60 * time.Second,
	}
	for i, w := range want {
		if got := seq.NextBackOff(); got != w {
			t.Errorf("retry %d: delay = %s, want %s", i+1, got, w)
		}
	}
}

func TestBackoff_SequenceExponentCap(t *testing.T) {
	// With a huge max the exponent stops at 2^10.
	p := NewBackoff(time.Millisecond, time.Hour)
	seq := p.Sequence()

	var last time.Duration
	for i := 0; i < 20; i++ {
		last = seq.NextBackOff()
	}
	if last != 1024*time.Millisecond {
		t.Errorf("Expected delay capped at base*2^10, got %s", last)
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	retries := 0
	p := NoDelayBackoff()
	p.OnRetry = func(op string, attempt int, delay time.Duration, err error) {
		retries++
	}

	got, err := Retry(context.Background(), p, "ticker", func(ctx context.Context) (int, error) {
		calls++
		if calls < 4 {
			return 0, domain.NewNetworkError("ticker", errors.New("timeout"))
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if got != 42 {
		t.Errorf("Expected 42, got %d", got)
	}
	if calls != 4 || retries != 3 {
		t.Errorf("Expected 4 calls and 3 retries, got %d and %d", calls, retries)
	}
}

func TestRetry_NonTransientPropagatesImmediately(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), NoDelayBackoff(), "balance", func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.NewExchangeError("balance", domain.KindUnknown, "700002", errors.New("signature invalid"))
	})

	if err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Errorf("Non-transient error must not be retried, got %d calls", calls)
	}
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewBackoff(time.Hour, time.Hour)

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Retry(ctx, p, "ticker", func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.NewNetworkError("ticker", errors.New("eof"))
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single call before cancellation, got %d", calls)
	}
}
