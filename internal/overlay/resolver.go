package overlay

import (
	"context"
)

// Mode controls whether the resolver consults the external signal.
type Mode int

const (
	// ModeOverrideOrExternal flags an anchor when either the external
	// detection signal or a local FLAG override says so. Default.
	ModeOverrideOrExternal Mode = iota

	// ModeOverrideOnly ignores the external hint and answers purely from
	// the local override log. Used where no external signal is available.
	ModeOverrideOnly
)

// Resolver answers flag lookups by merging the override log with the
// external signal carried on detection results.
type Resolver struct {
	store Store
	mode  Mode
}

// NewResolver creates a resolver in ModeOverrideOrExternal.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, mode: ModeOverrideOrExternal}
}

// WithMode sets the resolution mode.
func (r *Resolver) WithMode(mode Mode) *Resolver {
	r.mode = mode
	return r
}

// IsFlagged reports whether the anchor is currently flagged. externalHint is
// the fraud marker riding along on the detection/search result for this
// anchor; the resolver never queries the oracle itself.
func (r *Resolver) IsFlagged(ctx context.Context, anchor Anchor, externalHint bool) (bool, error) {
	if r.mode == ModeOverrideOrExternal && externalHint {
		return true, nil
	}
	return r.store.HasFlag(ctx, anchor)
}

// IsFlaggedBatch resolves many anchors at once. Behaves identically to
// calling IsFlagged per anchor; hints may be nil.
func (r *Resolver) IsFlaggedBatch(ctx context.Context, anchors []Anchor, hints map[Anchor]bool) (map[Anchor]bool, error) {
	flagged, err := r.store.HasFlagBatch(ctx, anchors)
	if err != nil {
		return nil, err
	}
	if r.mode == ModeOverrideOrExternal {
		for anchor, hint := range hints {
			if hint {
				flagged[anchor] = true
			}
		}
	}
	return flagged, nil
}
