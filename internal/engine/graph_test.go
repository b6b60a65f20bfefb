package engine

import (
	"strings"
	"testing"
)

func TestDefaultGraphParses(t *testing.T) {
	t.Parallel()

	g, err := DefaultGraph()
	if err != nil {
		t.Fatalf("DefaultGraph: %v", err)
	}
	if g.Entry != "scoping" {
		t.Fatalf("entry = %s, want scoping", g.Entry)
	}

	scope := g.Phase("scope")
	if scope == nil || !scope.Checkpoint.Fixed {
		t.Fatal("scope must be a fixed checkpoint")
	}
	final := g.Phase("final")
	if final == nil || !final.Checkpoint.Fixed {
		t.Fatal("final must be a fixed checkpoint")
	}
	if final.ConfirmTarget() != TerminalPhase {
		t.Fatalf("final routes to %s, want %s", final.ConfirmTarget(), TerminalPhase)
	}

	cp1 := g.Phase("checkpoint-1")
	if cp1.ReviseTarget() != "revision_1" {
		t.Fatalf("checkpoint-1 revise target = %s", cp1.ReviseTarget())
	}
	if cp1.ConfirmTarget() != "implementing" {
		t.Fatalf("checkpoint-1 confirm target = %s", cp1.ConfirmTarget())
	}

	// revision_2 loops back to the same checkpoint.
	if g.Phase("revision_2").Next != "checkpoint-2" {
		t.Fatalf("revision_2 next = %s", g.Phase("revision_2").Next)
	}
	// revision output overwrites the phase it revises.
	if g.Phase("revision_1").OutputKey != "designing" {
		t.Fatalf("revision_1 output key = %s", g.Phase("revision_1").OutputKey)
	}

	kick := g.Phase("kickoff-direction")
	if kick.Checkpoint.SkipAbove != 0.5 {
		t.Fatalf("kickoff-direction skip_above = %v", kick.Checkpoint.SkipAbove)
	}
}

func TestParseGraphLinearInference(t *testing.T) {
	t.Parallel()

	g, err := ParseGraph(`
name: tiny
phases:
  - id: a
    kind: work
    handler: h
  - id: b
    kind: work
    handler: h
`)
	if err != nil {
		t.Fatalf("ParseGraph: %v", err)
	}
	if g.Phase("a").Next != "b" {
		t.Fatalf("a.next = %s, want b", g.Phase("a").Next)
	}
	if g.Phase("b").Next != TerminalPhase {
		t.Fatalf("b.next = %s, want %s", g.Phase("b").Next, TerminalPhase)
	}
	if g.Phase("a").OutputKey != "a" {
		t.Fatalf("a.output_key = %s, want a", g.Phase("a").OutputKey)
	}
}

func TestParseGraphValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		src  string
		want string
	}{
		{"empty", "name: x", "no phases"},
		{"missing handler", `
phases:
  - id: a
    kind: work
`, "needs a handler"},
		{"missing checkpoint block", `
phases:
  - id: a
    kind: checkpoint
`, "needs a checkpoint block"},
		{"unknown kind", `
phases:
  - id: a
    kind: decide
`, "unknown kind"},
		{"duplicate id", `
phases:
  - id: a
    kind: work
    handler: h
  - id: a
    kind: work
    handler: h
`, "duplicate phase id"},
		{"unknown next", `
phases:
  - id: a
    kind: work
    handler: h
    next: nowhere
`, "unknown phase"},
		{"reserved id", `
phases:
  - id: complete
    kind: work
    handler: h
`, "reserved"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseGraph(tc.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
