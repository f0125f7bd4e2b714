package detection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mbd888/fraudwatch/internal/circuitbreaker"
)

func TestGuardedOracle_PassesThroughDetections(t *testing.T) {
	inner := NewStaticOracle()
	inner.Put("mule_ring", Detection{SubjectAccountNumber: "ACC-1", Summary: "ring of 4"})

	g := NewGuardedOracle(inner).WithRetry(2, time.Millisecond)

	dets, err := g.Detect(context.Background(), "mule_ring")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 1 || dets[0].SubjectAccountNumber != "ACC-1" {
		t.Fatalf("unexpected detections: %+v", dets)
	}
}

func TestGuardedOracle_RetriesTransientThenFails(t *testing.T) {
	inner := NewStaticOracle()
	inner.Fail("mule_ring", fmt.Errorf("%w: connection refused", ErrUpstream))

	g := NewGuardedOracle(inner).WithRetry(3, time.Millisecond)

	_, err := g.Detect(context.Background(), "mule_ring")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestGuardedOracle_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	inner := oracleFunc(func(ctx context.Context, ruleKey string) ([]Detection, error) {
		calls++
		return nil, errors.New("bad rule config")
	})

	g := NewGuardedOracle(inner).WithRetry(5, time.Millisecond)

	_, err := g.Detect(context.Background(), "mule_ring")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call for non-upstream error, got %d", calls)
	}
}

func TestGuardedOracle_BreakerOpensAndShortCircuits(t *testing.T) {
	inner := NewStaticOracle()
	inner.Fail("mule_ring", fmt.Errorf("%w: status 502", ErrUpstream))

	g := NewGuardedOracle(inner).
		WithRetry(1, time.Millisecond).
		WithBreaker(circuitbreaker.New(2, time.Minute))

	// Two failed refreshes trip the breaker.
	for i := 0; i < 2; i++ {
		if _, err := g.Detect(context.Background(), "mule_ring"); err == nil {
			t.Fatal("expected upstream error")
		}
	}
	if g.BreakerState("mule_ring") != circuitbreaker.StateOpen {
		t.Fatalf("expected open breaker, got %v", g.BreakerState("mule_ring"))
	}

	_, err := g.Detect(context.Background(), "mule_ring")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	// ErrCircuitOpen still classifies as an upstream failure.
	if !errors.Is(err, ErrUpstream) {
		t.Fatal("ErrCircuitOpen should wrap ErrUpstream")
	}
}

func TestGuardedOracle_BreakerIsolatesRules(t *testing.T) {
	inner := NewStaticOracle()
	inner.Fail("mule_ring", fmt.Errorf("%w: status 502", ErrUpstream))
	inner.Put("identity_fraud", Detection{SubjectAccountNumber: "ACC-2", Summary: "shared device"})

	g := NewGuardedOracle(inner).
		WithRetry(1, time.Millisecond).
		WithBreaker(circuitbreaker.New(1, time.Minute))

	if _, err := g.Detect(context.Background(), "mule_ring"); err == nil {
		t.Fatal("expected upstream error")
	}
	if g.BreakerState("mule_ring") != circuitbreaker.StateOpen {
		t.Fatal("mule_ring breaker should be open")
	}

	dets, err := g.Detect(context.Background(), "identity_fraud")
	if err != nil {
		t.Fatalf("identity_fraud should be unaffected: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
}

func TestGuardedOracle_RecoveryClosesBreaker(t *testing.T) {
	inner := NewStaticOracle()
	inner.Fail("mule_ring", fmt.Errorf("%w: status 502", ErrUpstream))

	g := NewGuardedOracle(inner).
		WithRetry(1, time.Millisecond).
		WithBreaker(circuitbreaker.New(1, 10*time.Millisecond))

	if _, err := g.Detect(context.Background(), "mule_ring"); err == nil {
		t.Fatal("expected upstream error")
	}

	// Upstream recovers; after the open window the probe succeeds.
	inner.Fail("mule_ring", nil)
	inner.Put("mule_ring", Detection{SubjectAccountNumber: "ACC-1", Summary: "ring of 4"})
	time.Sleep(20 * time.Millisecond)

	dets, err := g.Detect(context.Background(), "mule_ring")
	if err != nil {
		t.Fatalf("probe should succeed: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if g.BreakerState("mule_ring") != circuitbreaker.StateClosed {
		t.Fatalf("expected closed breaker, got %v", g.BreakerState("mule_ring"))
	}
}

// oracleFunc adapts a function to the Oracle interface.
type oracleFunc func(ctx context.Context, ruleKey string) ([]Detection, error)

func (f oracleFunc) Detect(ctx context.Context, ruleKey string) ([]Detection, error) {
	return f(ctx, ruleKey)
}
