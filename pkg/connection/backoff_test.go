package connection

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			30 * time.Second,
			30 * time.Second, // Should stay at max
		}

		for i, exp := range expected {
			if got := b.Next(); got != exp {
				t.Errorf("Attempt %d: delay = %v, want %v", i, got, exp)
			}
		}
		if b.Attempts() != len(expected) {
			t.Errorf("Attempts() = %d, want %d", b.Attempts(), len(expected))
		}
	})

	t.Run("MonotonicUpToMax", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: 300 * time.Millisecond, Max: 7 * time.Second, Multiplier: 1.7})

		prev := time.Duration(0)
		for i := 0; i < 50; i++ {
			d := b.Next()
			if d < prev {
				t.Fatalf("Attempt %d: delay %v decreased from %v", i, d, prev)
			}
			if d > 7*time.Second {
				t.Fatalf("Attempt %d: delay %v above max", i, d)
			}
			prev = d
		}
		if prev != 7*time.Second {
			t.Errorf("final delay = %v, want max", prev)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()
		b.Next()
		b.Next()
		b.Next()

		b.Reset()

		if b.Current() != InitialBackoff {
			t.Errorf("after Reset, Current() = %v, want %v", b.Current(), InitialBackoff)
		}
		if b.Attempts() != 0 {
			t.Errorf("after Reset, Attempts() = %d, want 0", b.Attempts())
		}
		if got := b.Next(); got != InitialBackoff {
			t.Errorf("first delay after Reset = %v, want %v", got, InitialBackoff)
		}
	})

	t.Run("PeekDoesNotAdvance", func(t *testing.T) {
		b := NewBackoff()
		if b.Peek() != b.Peek() {
			t.Error("Peek without jitter should be stable")
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts() = %d after Peek", b.Attempts())
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Jitter: 0.25})

		for i := 0; i < 20; i++ {
			s := b.Peek()
			if s < time.Second || s > time.Duration(float64(time.Second)*1.25)+time.Millisecond {
				t.Errorf("Sample %d: %v out of expected range [1s, 1.25s]", i, s)
			}
		}
	})

	t.Run("JitterCappedAtMax", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Max: 4 * time.Second, Multiplier: 2, Jitter: 1})

		for i := 0; i < 50; i++ {
			if d := b.Next(); d > 4*time.Second {
				t.Fatalf("Next() #%d = %v exceeds max 4s", i, d)
			}
		}
		for i := 0; i < 20; i++ {
			if d := b.Peek(); d > 4*time.Second {
				t.Fatalf("Peek() #%d = %v exceeds max 4s", i, d)
			}
		}
	})

	t.Run("ConfigDefaults", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Multiplier: 0.5, Jitter: -1})
		initial, max := b.Bounds()
		if initial != InitialBackoff || max != MaxBackoff {
			t.Errorf("Bounds() = %v, %v", initial, max)
		}
		b.Next()
		if b.Current() != 2*time.Second {
			t.Errorf("multiplier not defaulted: Current() = %v", b.Current())
		}
	})

	t.Run("MaxBelowInitial", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: 5 * time.Second, Max: time.Second})
		if got := b.Next(); got != 5*time.Second {
			t.Errorf("first delay = %v, want 5s", got)
		}
		if got := b.Next(); got != 5*time.Second {
			t.Errorf("second delay = %v, want 5s", got)
		}
	})
}

func TestStateTransitions(t *testing.T) {
	legal := []struct{ from, to State }{
		{StateDisconnected, StateConnecting},
		{StateConnecting, StateConnected},
		{StateConnecting, StateError},
		{StateConnecting, StateDisconnected},
		{StateConnected, StateDisconnected},
		{StateConnected, StateError},
		{StateError, StateConnecting},
		{StateError, StateDisconnected},
	}
	for _, tc := range legal {
		if !tc.from.CanTransition(tc.to) {
			t.Errorf("%s -> %s should be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to State }{
		{StateDisconnected, StateConnected},
		{StateDisconnected, StateError},
		{StateConnected, StateConnecting},
		{StateError, StateConnected},
	}
	for _, tc := range illegal {
		if tc.from.CanTransition(tc.to) {
			t.Errorf("%s -> %s should be illegal", tc.from, tc.to)
		}
	}

	if State(99).String() != "UNKNOWN" {
		t.Errorf("State(99).String() = %q", State(99).String())
	}
}
