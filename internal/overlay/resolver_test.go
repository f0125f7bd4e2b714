package overlay

import (
	"context"
	"testing"
	"time"

	"github.com/mbd888/fraudwatch/internal/clock"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc := NewService(store).WithClock(clock.NewFake(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC)))
	return svc, store
}

func TestExternalHintFlags(t *testing.T) {
	_, store := newTestService(t)
	resolver := NewResolver(store)
	anchor := Anchor{ID: "ACC-1", Type: AnchorAccount}

	flagged, err := resolver.IsFlagged(context.Background(), anchor, true)
	if err != nil {
		t.Fatalf("IsFlagged: %v", err)
	}
	if !flagged {
		t.Error("expected external hint to flag the anchor")
	}

	flagged, err = resolver.IsFlagged(context.Background(), anchor, false)
	if err != nil {
		t.Fatalf("IsFlagged: %v", err)
	}
	if flagged {
		t.Error("expected unhinted anchor with no override to be unflagged")
	}
}

func TestOverrideFlagsWithoutExternal(t *testing.T) {
	svc, store := newTestService(t)
	resolver := NewResolver(store)
	anchor := Anchor{ID: "ACC-2", Type: AnchorAccount}

	if _, err := svc.SetFlag(context.Background(), anchor, "FAF-GRAPH-001", "confirmed mule"); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}

	flagged, err := resolver.IsFlagged(context.Background(), anchor, false)
	if err != nil {
		t.Fatalf("IsFlagged: %v", err)
	}
	if !flagged {
		t.Error("expected FLAG override to flag the anchor")
	}
}

func TestNoteDoesNotFlag(t *testing.T) {
	svc, store := newTestService(t)
	resolver := NewResolver(store)
	anchor := Anchor{ID: "ACC-3", Type: AnchorAccount}

	if _, err := svc.AddNote(context.Background(), anchor, "", "looks fine so far"); err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	flagged, err := resolver.IsFlagged(context.Background(), anchor, false)
	if err != nil {
		t.Fatalf("IsFlagged: %v", err)
	}
	if flagged {
		t.Error("a NOTE action must not flag the anchor")
	}
}

func TestOverrideOnlyModeIgnoresHint(t *testing.T) {
	_, store := newTestService(t)
	resolver := NewResolver(store).WithMode(ModeOverrideOnly)
	anchor := Anchor{ID: "DEV-1", Type: AnchorDevice}

	flagged, err := resolver.IsFlagged(context.Background(), anchor, true)
	if err != nil {
		t.Fatalf("IsFlagged: %v", err)
	}
	if flagged {
		t.Error("override-only mode must ignore the external hint")
	}
}

func TestBatchMatchesPointLookups(t *testing.T) {
	svc, store := newTestService(t)
	resolver := NewResolver(store)

	anchors := []Anchor{
		{ID: "ACC-10", Type: AnchorAccount},
		{ID: "ACC-11", Type: AnchorAccount},
		{ID: "DEV-10", Type: AnchorDevice},
	}
	if _, err := svc.SetFlag(context.Background(), anchors[1], "", ""); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}
	hints := map[Anchor]bool{anchors[2]: true}

	batch, err := resolver.IsFlaggedBatch(context.Background(), anchors, hints)
	if err != nil {
		t.Fatalf("IsFlaggedBatch: %v", err)
	}

	for _, anchor := range anchors {
		point, err := resolver.IsFlagged(context.Background(), anchor, hints[anchor])
		if err != nil {
			t.Fatalf("IsFlagged(%v): %v", anchor, err)
		}
		if batch[anchor] != point {
			t.Errorf("anchor %v: batch=%v point=%v", anchor, batch[anchor], point)
		}
	}
	if batch[anchors[0]] || !batch[anchors[1]] || !batch[anchors[2]] {
		t.Errorf("unexpected batch result: %v", batch)
	}
}

func TestFlagIsPermanent(t *testing.T) {
	svc, store := newTestService(t)
	resolver := NewResolver(store)
	anchor := Anchor{ID: "ACC-20", Type: AnchorAccount}

	if _, err := svc.SetFlag(context.Background(), anchor, "", ""); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}
	// Later actions never clear the flag.
	if _, err := svc.RecordAction(context.Background(), anchor, "REVIEWED", "CLEARED", "false positive", ""); err != nil {
		t.Fatalf("RecordAction: %v", err)
	}

	flagged, err := resolver.IsFlagged(context.Background(), anchor, false)
	if err != nil {
		t.Fatalf("IsFlagged: %v", err)
	}
	if !flagged {
		t.Error("a flagged anchor must stay flagged")
	}
}

func TestValidationErrors(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.SetFlag(context.Background(), Anchor{Type: AnchorAccount}, "", ""); err != ErrMissingAnchor {
		t.Errorf("expected ErrMissingAnchor, got %v", err)
	}
	if _, err := svc.SetFlag(context.Background(), Anchor{ID: "A", Type: "WALLET"}, "", ""); err != ErrInvalidAnchorType {
		t.Errorf("expected ErrInvalidAnchorType, got %v", err)
	}
	if _, err := svc.AddNote(context.Background(), Anchor{ID: "A", Type: AnchorAccount}, "", ""); err == nil {
		t.Error("expected error for empty note")
	}
}
