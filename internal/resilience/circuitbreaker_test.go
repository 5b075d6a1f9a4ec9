package resilience

import (
	"errors"
	"testing"
	"time"
)

var (
	errTest     = errors.New("test error")
	errNotThere = errors.New("no such video")
)

// trip fails cb n times.
func trip(cb *CircuitBreaker, n int) {
	for range n {
		_ = cb.Execute(func() error { return errTest })
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "ytdlp"})
	if cb.maxFailures != 5 || cb.resetTimeout != 30*time.Second || cb.halfOpenMax != 3 {
		t.Errorf("defaults = {%d, %v, %d}, want {5, 30s, 3}", cb.maxFailures, cb.resetTimeout, cb.halfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
	if cb.Name() != "ytdlp" {
		t.Errorf("Name() = %q, want ytdlp", cb.Name())
	}
}

func TestCircuitBreaker_Opens(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})

	trip(cb, 2)
	_ = cb.Execute(func() error { return nil })
	trip(cb, 2)
	if cb.State() != StateClosed {
		t.Fatal("a success between failures should reset the counter")
	}

	trip(cb, 1)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after 3 consecutive failures", cb.State())
	}
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("open breaker: err=%v called=%v, want ErrCircuitOpen without call", err, called)
	}
}

func TestCircuitBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
		Ignore:       func(err error) bool { return errors.Is(err, errNotThere) },
	})
	for range 5 {
		if err := cb.Execute(func() error { return errNotThere }); !errors.Is(err, errNotThere) {
			t.Fatalf("err = %v, want errNotThere passed through", err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, ignored errors must not open the breaker", cb.State())
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		probe error
		want  State
	}{
		{name: "successful probes close", probe: nil, want: StateClosed},
		{name: "failed probe re-opens", probe: errTest, want: StateOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cb := NewCircuitBreaker(CircuitBreakerConfig{
				MaxFailures:  2,
				ResetTimeout: 10 * time.Millisecond,
				HalfOpenMax:  2,
			})
			trip(cb, 2)
			time.Sleep(15 * time.Millisecond)
			if cb.State() != StateHalfOpen {
				t.Fatalf("state = %v, want half-open after the reset timeout", cb.State())
			}

			for range 2 {
				_ = cb.Execute(func() error { return tt.probe })
			}
			cb.mu.Lock()
			got := cb.state
			cb.mu.Unlock()
			if got != tt.want {
				t.Fatalf("state = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	trip(cb, 1)
	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute after reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for state, want := range map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
