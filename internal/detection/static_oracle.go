package detection

import (
	"context"
	"sync"
)

// StaticOracle serves canned detections keyed by rule. Used in tests and as
// the fallback when no remote oracle is configured.
type StaticOracle struct {
	mu         sync.RWMutex
	detections map[string][]Detection
	errs       map[string]error
}

// NewStaticOracle creates an empty static oracle.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		detections: make(map[string][]Detection),
		errs:       make(map[string]error),
	}
}

// Put registers detections for a rule key, replacing any previous set.
func (o *StaticOracle) Put(ruleKey string, detections ...Detection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.detections[ruleKey] = detections
}

// Fail makes Detect return err for the given rule key.
func (o *StaticOracle) Fail(ruleKey string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs[ruleKey] = err
}

func (o *StaticOracle) Detect(ctx context.Context, ruleKey string) ([]Detection, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if err := o.errs[ruleKey]; err != nil {
		return nil, err
	}
	out := make([]Detection, len(o.detections[ruleKey]))
	copy(out, o.detections[ruleKey])
	return out, nil
}
