package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/alex-ant/gomath/rational"
)

func TestFixedBackoff(t *testing.T) {
	b := NewFixedBackoff(2 * time.Second)
	for attempts := 0; attempts < 4; attempts++ {
		if d := b.Time(context.Background(), &BackoffOptions{Attempts: attempts}); d != 2*time.Second {
			t.Fatalf("unexpected duration: %v", d)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := NewExponentialBackoff(time.Second, 2)
	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempts, want := range expected {
		if d := b.Time(context.Background(), &BackoffOptions{Attempts: attempts}); d != want {
			t.Fatalf("attempts %d: expected %v, got %v", attempts, want, d)
		}
	}
}

func TestLimitedBackoff(t *testing.T) {
	b := NewLimitedBackoff(NewExponentialBackoff(time.Second, 2), 2*time.Second, 8*time.Second)
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, 8 * time.Second},
	}
	for _, c := range cases {
		if d := b.Time(context.Background(), &BackoffOptions{Attempts: c.attempts}); d != c.want {
			t.Fatalf("attempts %d: expected %v, got %v", c.attempts, c.want, d)
		}
	}
}

func TestRandomizedBackoff(t *testing.T) {
	b := NewRandomizedBackoff(NewFixedBackoff(10*time.Second), rational.New(1, 2), rational.New(3, 2))
	for i := 0; i < 100; i++ {
		d := b.Time(context.Background(), &BackoffOptions{Attempts: 0})
		if d < 5*time.Second || d >= 15*time.Second {
			t.Fatalf("duration out of range: %v", d)
		}
	}
}

func TestRandomizedBackoffDegenerateRange(t *testing.T) {
	b := NewRandomizedBackoff(NewFixedBackoff(time.Second), rational.New(1, 1), rational.New(1, 1))
	if d := b.Time(context.Background(), &BackoffOptions{Attempts: 0}); d != time.Second {
		t.Fatalf("unexpected duration: %v", d)
	}
}

func TestRetryBackoff(t *testing.T) {
	b := NewRetryBackoff()
	for attempts := 0; attempts < 12; attempts++ {
		d := b.Time(context.Background(), &BackoffOptions{Attempts: attempts})
		base := time.Second * time.Duration(1<<uint(attempts))
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		if d < base || d >= base+base/2 {
			t.Fatalf("attempts %d: duration out of range: %v", attempts, d)
		}
	}
}

func TestCustomizedBackoff(t *testing.T) {
	b := NewBackoff(func(_ context.Context, opts *BackoffOptions) time.Duration {
		return time.Duration(opts.Attempts) * time.Second
	})
	if d := b.Time(context.Background(), &BackoffOptions{Attempts: 3}); d != 3*time.Second {
		t.Fatalf("unexpected duration: %v", d)
	}
}
