package store

import (
	"context"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Load(ctx, "missing"); err == nil {
		t.Fatal("expected error for unknown session")
	}

	state := &SessionState{
		ID:         "abc123",
		Status:     "running",
		Phase:      "designing",
		Confidence: 0.6,
		Brief:      "landing page",
		Outputs:    map[string]map[string]any{"scoping": {"summary": "x"}},
	}
	if err := m.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := m.Load(ctx, "abc123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Phase != "designing" || got.Confidence != 0.6 {
		t.Fatalf("loaded state %+v", got)
	}

	// Overwrite on re-save.
	state.Phase = "implementing"
	if err := m.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ = m.Load(ctx, "abc123")
	if got.Phase != "implementing" {
		t.Fatalf("phase after re-save = %s", got.Phase)
	}
}
