package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/fraudwatch/internal/circuitbreaker"
	"github.com/mbd888/fraudwatch/internal/retry"
)

// ErrCircuitOpen is returned when the breaker for a rule is open and the
// oracle is not consulted at all. It wraps ErrUpstream so existing callers
// that classify upstream failures keep working.
var ErrCircuitOpen = fmt.Errorf("%w: circuit open", ErrUpstream)

// GuardedOracle wraps an Oracle with a per-rule circuit breaker and bounded
// retries. A rule whose queries keep failing trips its own breaker; other
// rules continue to refresh normally.
type GuardedOracle struct {
	inner       Oracle
	breaker     *circuitbreaker.Breaker
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// NewGuardedOracle wraps inner with default guard settings: 3 attempts with
// 200ms base backoff, breaker opens after 5 consecutive failed refreshes and
// stays open for 30 seconds.
func NewGuardedOracle(inner Oracle) *GuardedOracle {
	return &GuardedOracle{
		inner:       inner,
		breaker:     circuitbreaker.New(5, 30*time.Second),
		maxAttempts: 3,
		baseDelay:   200 * time.Millisecond,
		logger:      slog.Default(),
	}
}

// WithLogger sets the logger.
func (o *GuardedOracle) WithLogger(logger *slog.Logger) *GuardedOracle {
	if logger != nil {
		o.logger = logger
	}
	return o
}

// WithBreaker replaces the default breaker, mainly for tests that need a
// short open duration.
func (o *GuardedOracle) WithBreaker(b *circuitbreaker.Breaker) *GuardedOracle {
	if b != nil {
		o.breaker = b
	}
	return o
}

// WithRetry overrides the retry attempt count and base delay.
func (o *GuardedOracle) WithRetry(maxAttempts int, baseDelay time.Duration) *GuardedOracle {
	if maxAttempts > 0 {
		o.maxAttempts = maxAttempts
	}
	if baseDelay > 0 {
		o.baseDelay = baseDelay
	}
	return o
}

// BreakerState reports the breaker state for a rule key.
func (o *GuardedOracle) BreakerState(ruleKey string) circuitbreaker.State {
	return o.breaker.State(ruleKey)
}

// Detect queries the inner oracle, retrying transient upstream failures.
// Non-upstream errors are treated as permanent and returned immediately.
func (o *GuardedOracle) Detect(ctx context.Context, ruleKey string) ([]Detection, error) {
	if !o.breaker.Allow(ruleKey) {
		return nil, ErrCircuitOpen
	}

	var out []Detection
	err := retry.Do(ctx, o.maxAttempts, o.baseDelay, func() error {
		dets, derr := o.inner.Detect(ctx, ruleKey)
		if derr != nil {
			if !errors.Is(derr, ErrUpstream) {
				return retry.Permanent(derr)
			}
			o.logger.Warn("detection query failed, will retry",
				"rule_key", ruleKey, "error", derr)
			return derr
		}
		out = dets
		return nil
	})
	if err != nil {
		o.breaker.RecordFailure(ruleKey)
		return nil, err
	}

	o.breaker.RecordSuccess(ruleKey)
	return out, nil
}
