package service

import (
	"testing"
	"time"
)

func TestBackoffPolicy_ExponentialLaw(t *testing.T) {
	p := NewBackoffPolicy(time.Second, 0, false)

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, 1024 * time.Second},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.retryCount); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.retryCount, got, tt.want)
		}
	}
}

func TestBackoffPolicy_NegativeCountClampsToBase(t *testing.T) {
	p := NewBackoffPolicy(time.Second, 0, false)
	if got := p.Delay(-3); got != time.Second {
		t.Errorf("Delay(-3) = %v, want %v", got, time.Second)
	}
}

func TestBackoffPolicy_Cap(t *testing.T) {
	p := NewBackoffPolicy(time.Second, 5*time.Second, false)

	if got := p.Delay(1); got != 2*time.Second {
		t.Errorf("Delay(1) under cap = %v, want 2s", got)
	}
	if got := p.Delay(4); got != 5*time.Second {
		t.Errorf("Delay(4) = %v, want capped 5s", got)
	}
	// Huge counts must not overflow past the cap either.
	if got := p.Delay(200); got != 5*time.Second {
		t.Errorf("Delay(200) = %v, want capped 5s", got)
	}
}

func TestBackoffPolicy_JitterBounds(t *testing.T) {
	p := NewBackoffPolicy(time.Second, 0, true)

	for i := 0; i < 100; i++ {
		d := p.Delay(2)
		if d < 4*time.Second || d >= 6*time.Second {
			t.Fatalf("jittered Delay(2) = %v, want in [4s, 6s)", d)
		}
	}
}

func TestBackoffPolicy_NextRetryAt(t *testing.T) {
	p := NewBackoffPolicy(time.Second, 0, false)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got := p.NextRetryAt(at, 1)
	want := at.Add(2 * time.Second)
	if !got.Equal(want) {
		t.Errorf("NextRetryAt = %v, want %v", got, want)
	}
}
