package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/LiranRouzentur/DynamicBusinessLandingPage-sub000/internal/config"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Mode != config.RetryBackoffLinear {
		t.Fatalf("expected linear default mode got %s", p.Mode)
	}
	if p.Initial != 500*time.Millisecond || p.Max != 10*time.Second || p.MaxRetries != 2 {
		t.Fatalf("unexpected defaults %+v", p)
	}
}

func TestNewPolicyClampsInitial(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	if p.Initial != 2*time.Second {
		t.Fatalf("expected clamped initial 2s got %v", p.Initial)
	}
	if p.Mode != config.RetryBackoffFixed || p.MaxRetries != 5 {
		t.Fatalf("overrides not applied: %+v", p)
	}
	if q := NewPolicy("bogus", 0, 0, -1); q != DefaultPolicy() {
		t.Fatalf("invalid input should keep defaults, got %+v", q)
	}
}

func TestDelayModes(t *testing.T) {
	ms := time.Millisecond
	cases := []struct {
		mode    config.RetryBackoffMode
		attempt int
		want    time.Duration
	}{
		{config.RetryBackoffFixed, 3, 100 * ms},
		{config.RetryBackoffLinear, 1, 100 * ms},
		{config.RetryBackoffLinear, 2, 200 * ms},
		{config.RetryBackoffLinear, 4, 250 * ms},
		{config.RetryBackoffExponential, 1, 100 * ms},
		{config.RetryBackoffExponential, 2, 200 * ms},
		{config.RetryBackoffExponential, 3, 250 * ms},
		{config.RetryBackoffExponential, 64, 250 * ms},
		{config.RetryBackoffLinear, 0, 0},
	}
	for _, c := range cases {
		p := NewPolicy(c.mode, 100*ms, 250*ms, 3)
		if got := p.Delay(c.attempt); got != c.want {
			t.Errorf("%s attempt %d: got %v want %v", c.mode, c.attempt, got, c.want)
		}
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := DefaultPolicy().Do(context.Background(), clockwork.NewRealClock(),
		func(error) bool { return false },
		func(context.Context) error { calls++; return permanent })
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestDoRetriesUntilBudget(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := NewPolicy(config.RetryBackoffFixed, time.Second, time.Second, 2)
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(context.Background(), clock,
			func(error) bool { return true },
			func(context.Context) error { calls++; return errors.New("transient") })
	}()
	for range 2 {
		if err := clock.BlockUntilContext(context.Background(), 1); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Second)
	}
	select {
	case err := <-done:
		if err == nil || calls != 3 {
			t.Fatalf("calls=%d err=%v", calls, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := DefaultPolicy().Wait(ctx, clockwork.NewFakeClock(), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
