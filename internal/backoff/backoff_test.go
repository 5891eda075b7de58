package backoff

import (
	"math"
	"testing"
	"time"
)

// --- Delay Tests ---

func TestDelay_FirstAttempt(t *testing.T) {
	d := Delay(time.Second, 2.0, 0)
	if d != time.Second {
		t.Errorf("expected 1s for attempt 0, got %v", d)
	}
}

func TestDelay_Doubling(t *testing.T) {
	tests := []struct {
		name     string
		attempt  int
		expected time.Duration
	}{
		{"attempt 0", 0, time.Second},
		{"attempt 1", 1, 2 * time.Second},
		{"attempt 2", 2, 4 * time.Second},
		{"attempt 3", 3, 8 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Delay(time.Second, 2.0, tt.attempt)
			if d != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, d)
			}
		})
	}
}

func TestDelay_ZeroBase(t *testing.T) {
	d := Delay(0, 2.0, 5)
	if d != 0 {
		t.Errorf("expected 0 for zero base, got %v", d)
	}
}

func TestDelay_ZeroMultiplier(t *testing.T) {
	d := Delay(time.Second, 0, 3)
	if d != time.Second {
		t.Errorf("expected constant delay for zero multiplier, got %v", d)
	}
}

func TestDelay_NegativeAttempt(t *testing.T) {
	d := Delay(time.Second, 2.0, -1)
	if d != time.Second {
		t.Errorf("expected attempt clamped to 0, got %v", d)
	}
}

func TestDelay_Saturates(t *testing.T) {
	d := Delay(time.Hour, 10.0, 100)
	if d != time.Duration(math.MaxInt64) {
		t.Errorf("expected saturation at MaxInt64, got %v", d)
	}
}

func TestDelay_FractionalMultiplier(t *testing.T) {
	d := Delay(time.Second, 1.5, 2)
	if d != 2250*time.Millisecond {
		t.Errorf("expected 2.25s, got %v", d)
	}
}

// --- Schedule Tests ---

func TestSchedule_ThreeAttempts(t *testing.T) {
	got := Schedule(time.Second, 2.0, 3)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestSchedule_ZeroAttempts(t *testing.T) {
	if got := Schedule(time.Second, 2.0, 0); got != nil {
		t.Errorf("expected nil for zero attempts, got %v", got)
	}
}
