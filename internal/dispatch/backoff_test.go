package dispatch

import (
	"testing"
	"time"
)

func TestConstantBackoff(t *testing.T) {
	b := ConstantBackoff{Interval: time.Second}
	for attempt := 0; attempt < 5; attempt++ {
		if got := b.Next(attempt); got != time.Second {
			t.Errorf("attempt %d: expected 1s, got %v", attempt, got)
		}
	}
}

func TestLinearBackoff(t *testing.T) {
	b := LinearBackoff{Step: time.Second, Max: 3 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 3 * time.Second},
		{5, 3 * time.Second},
	}
	for _, tc := range cases {
		if got := b.Next(tc.attempt); got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Initial: time.Second, Max: 8 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := b.Next(tc.attempt); got != tc.want {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestExponentialBackoff_JitterBounds(t *testing.T) {
	b := ExponentialBackoff{Initial: time.Second, Max: 8 * time.Second, Jitter: 0.2}

	for i := 0; i < 100; i++ {
		got := b.Next(1)
		if got < 1600*time.Millisecond || got > 2400*time.Millisecond {
			t.Fatalf("expected jittered wait within 20%% of 2s, got %v", got)
		}
	}
}

func TestDefaultBackoff(t *testing.T) {
	if got := DefaultBackoff().Next(0); got != time.Second {
		t.Errorf("expected default 1s interval, got %v", got)
	}
}
