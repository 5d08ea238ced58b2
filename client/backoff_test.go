package client

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	limit := 30 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},  // clamped to attempt 1
		{-3, time.Second}, // clamped to attempt 1
		{1, time.Second},
		{2, 2 * time.Second},
		{29, 29 * time.Second},
		{30, 30 * time.Second}, // exactly at the ceiling
		{31, 30 * time.Second},
		{1000, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(base, limit, tc.attempt); got != tc.want {
			t.Errorf("backoffDelay(%v, %v, %d) = %v, want %v", base, limit, tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffDelaySubSecondBase(t *testing.T) {
	if got := backoffDelay(50*time.Millisecond, 200*time.Millisecond, 3); got != 150*time.Millisecond {
		t.Errorf("got %v, want 150ms", got)
	}
	if got := backoffDelay(50*time.Millisecond, 200*time.Millisecond, 10); got != 200*time.Millisecond {
		t.Errorf("got %v, want cap 200ms", got)
	}
}
