package infra

import (
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		retry int
		want  time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},
		{31, 60 * time.Second},
		{1000, 60 * time.Second},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.retry); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.retry, got, tt.want)
		}
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(3, 1)
	for i := 0; i < 3; i++ {
		if !rl.TryAcquire() {
			t.Fatalf("burst token %d denied", i)
		}
	}
	if rl.TryAcquire() {
		t.Fatal("token granted beyond burst")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(1, 100) // refills fast enough for a short test
	if !rl.TryAcquire() {
		t.Fatal("initial token denied")
	}
	if rl.TryAcquire() {
		t.Fatal("empty bucket granted a token")
	}
	time.Sleep(50 * time.Millisecond)
	if !rl.TryAcquire() {
		t.Fatal("no token after refill window")
	}
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, 2, 20*time.Millisecond)

	if !cb.Allow() || cb.State() != BreakerClosed {
		t.Fatal("new breaker not closed")
	}

	// Failures below threshold keep it closed; reaching it opens.
	cb.RecordFailure()
	if cb.State() != BreakerClosed {
		t.Fatal("opened below threshold")
	}
	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatal("did not open at threshold")
	}
	if cb.Allow() {
		t.Fatal("open breaker allowed a request")
	}

	// After the cooldown one probe goes through.
	time.Sleep(30 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("no probe after cooldown")
	}
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state after cooldown = %s", cb.State())
	}

	// A failing probe reopens immediately.
	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatal("failing probe did not reopen")
	}

	// Enough passing probes close it again.
	time.Sleep(30 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("no probe after second cooldown")
	}
	cb.RecordSuccess()
	if cb.State() != BreakerHalfOpen {
		t.Fatal("closed before success threshold")
	}
	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Fatal("did not close after success threshold")
	}
}

func TestBreakerStateString(t *testing.T) {
	if BreakerClosed.String() != "CLOSED" || BreakerOpen.String() != "OPEN" ||
		BreakerHalfOpen.String() != "HALF_OPEN" {
		t.Fatal("unexpected state names")
	}
}
