package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errTestError = errors.New("test error")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := New(cfg)
	cb.now = clock.Now
	cb.stateChangeTime = clock.Now()
	return cb, clock
}

func testConfig() Config {
	return Config{
		FailureThreshold:    2,
		SuccessThreshold:    2,
		Timeout:             time.Second,
		MaxRequestsHalfOpen: 2,
	}
}

func fail() error    { return errTestError }
func succeed() error { return nil }

func openBreaker(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	for i := 0; i < cb.config.FailureThreshold; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected state Open, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_ClosedState_Success(t *testing.T) {
	cb := New(DefaultConfig())

	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state Closed, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_ClosedState_Failure(t *testing.T) {
	cb := New(DefaultConfig())

	err := cb.Execute(context.Background(), fail)
	if !errors.Is(err, errTestError) {
		t.Errorf("Expected wrapped test error, got: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state Closed, got: %v", cb.GetState())
	}
	if stats := cb.GetStats(); stats.FailureCount != 1 {
		t.Errorf("Expected failure count 1, got: %d", stats.FailureCount)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(testConfig())
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, succeed)
	_ = cb.Execute(ctx, fail)

	if cb.GetState() != StateClosed {
		t.Errorf("Expected non-consecutive failures to keep the breaker closed, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_OpenState_RejectsRequests(t *testing.T) {
	cb, _ := newTestBreaker(testConfig())
	openBreaker(t, cb)

	called := false
	err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	})

	if !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen, got: %v", err)
	}
	if called {
		t.Error("Expected protected function not to run while open")
	}
}

func TestCircuitBreaker_HalfOpenState_TransitionToClosed(t *testing.T) {
	cb, clock := newTestBreaker(testConfig())
	openBreaker(t, cb)
	clock.Advance(time.Second)

	ctx := context.Background()
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("Expected probe to pass, got: %v", err)
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("Expected state HalfOpen after one success, got: %v", cb.GetState())
	}
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("Expected probe to pass, got: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state Closed, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenState_FailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(testConfig())
	openBreaker(t, cb)
	clock.Advance(time.Second)

	if err := cb.Execute(context.Background(), fail); err == nil {
		t.Error("Expected error, got nil")
	}
	if cb.GetState() != StateOpen {
		t.Errorf("Expected state Open, got: %v", cb.GetState())
	}

	// The open period restarts from the failed probe.
	clock.Advance(500 * time.Millisecond)
	if err := cb.Execute(context.Background(), succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen, got: %v", err)
	}
}

func TestCircuitBreaker_HalfOpenState_MaxRequestsLimit(t *testing.T) {
	cb, clock := newTestBreaker(testConfig())
	openBreaker(t, cb)
	clock.Advance(time.Second)

	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(ctx, func() error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	<-started
	<-started

	if err := cb.Execute(ctx, succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("Expected probe beyond the limit to be rejected, got: %v", err)
	}

	close(release)
	wg.Wait()
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state Closed, got: %v", cb.GetState())
	}
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got: %v", err)
		}
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected cancellations not to open the breaker, got: %v", cb.GetState())
	}
}

func TestExecuteValue(t *testing.T) {
	cb, _ := newTestBreaker(testConfig())
	ctx := context.Background()

	v, err := ExecuteValue(ctx, cb, func() (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Errorf("Expected 42, nil; got: %d, %v", v, err)
	}

	v, err = ExecuteValue(ctx, cb, func() (int, error) { return 7, errTestError })
	if !errors.Is(err, errTestError) || v != 0 {
		t.Errorf("Expected zero value and test error; got: %d, %v", v, err)
	}

	openBreaker(t, cb)
	_, err = ExecuteValue(ctx, cb, func() (int, error) { return 1, nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen, got: %v", err)
	}
}

func TestCircuitBreaker_OnStateChange_Callback(t *testing.T) {
	cb, clock := newTestBreaker(testConfig())

	changes := make(chan [2]State, 8)
	cb.OnStateChange(func(from, to State) {
		changes <- [2]State{from, to}
	})

	openBreaker(t, cb)
	clock.Advance(time.Second)
	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), succeed)

	seen := make(map[[2]State]bool)
	timeout := time.After(time.Second)
	for len(seen) < 3 {
		select {
		case c := <-changes:
			seen[c] = true
		case <-timeout:
			t.Fatalf("Expected three transitions, got: %v", seen)
		}
	}

	for _, want := range [][2]State{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	} {
		if !seen[want] {
			t.Errorf("Missing transition %v -> %v", want[0], want[1])
		}
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(testConfig())
	openBreaker(t, cb)

	cb.Reset()

	if cb.GetState() != StateClosed {
		t.Errorf("Expected state Closed after reset, got: %v", cb.GetState())
	}
	if stats := cb.GetStats(); stats.FailureCount != 0 {
		t.Errorf("Expected failure count 0 after reset, got: %d", stats.FailureCount)
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := New(DefaultConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = cb.Execute(ctx, succeed)
				_ = cb.GetStats()
			}
		}()
	}
	wg.Wait()

	if cb.GetState() != StateClosed {
		t.Errorf("Expected state Closed after concurrent access, got: %v", cb.GetState())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.FailureThreshold != 5 {
		t.Errorf("Expected FailureThreshold 5, got: %d", cfg.FailureThreshold)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Expected Timeout 10s, got: %v", cfg.Timeout)
	}
	if cfg.MaxRequestsHalfOpen != 1 {
		t.Errorf("Expected MaxRequestsHalfOpen 1, got: %d", cfg.MaxRequestsHalfOpen)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if tt.state.String() != tt.expected {
			t.Errorf("Expected %s, got: %s", tt.expected, tt.state.String())
		}
	}
}
