package engine

import "testing"

func gateSession(t *testing.T, confidence float64, trust map[string]float64) *Session {
	t.Helper()
	s := NewSession("brief", trust)
	s.mu.Lock()
	s.confidence = confidence
	s.mu.Unlock()
	return s
}

func TestGateFixedAlwaysPauses(t *testing.T) {
	t.Parallel()

	cp := &CheckpointDef{Fixed: true, Gatekeeper: "manager"}
	s := gateSession(t, 1.0, map[string]float64{"manager": 1.0})
	if got := EvaluateGate(cp, s); got != RequireDecision {
		t.Fatalf("fixed checkpoint: %s, want require_decision", got)
	}
}

func TestGateAdaptive(t *testing.T) {
	t.Parallel()

	cp := &CheckpointDef{Gatekeeper: "manager"}

	cases := []struct {
		name       string
		confidence float64
		trust      float64
		critical   bool
		want       GateResult
	}{
		{"clears default threshold", 0.8, 0.5, false, SelfApprove},
		{"exactly at threshold", 0.75, 0.5, false, SelfApprove},
		{"below threshold", 0.7, 0.5, false, RequireDecision},
		{"critical flag overrides confidence", 0.99, 0.9, true, RequireDecision},
		{"zero trust never self-approves", 0.99, 0.0, false, RequireDecision},
		{"full trust floors at half", 0.5, 1.0, false, SelfApprove},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := gateSession(t, tc.confidence, map[string]float64{"manager": tc.trust})
			if tc.critical {
				s.AppendFlag(MilestoneFlag{Reason: "layout broken", Critical: true})
			}
			if got := EvaluateGate(cp, s); got != tc.want {
				t.Fatalf("EvaluateGate = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestGateNonCriticalFlagsDoNotPauseAlone(t *testing.T) {
	t.Parallel()

	cp := &CheckpointDef{Gatekeeper: "manager"}
	s := gateSession(t, 0.8, map[string]float64{"manager": 0.5})
	s.AppendFlag(MilestoneFlag{Reason: "minor spacing issue"})

	if got := EvaluateGate(cp, s); got != SelfApprove {
		t.Fatalf("non-critical flag blocked self-approval: %s", got)
	}
}

func TestGateUnknownGatekeeperUsesDefaultTrust(t *testing.T) {
	t.Parallel()

	cp := &CheckpointDef{Gatekeeper: "nobody"}
	s := gateSession(t, 0.75, nil)
	if got := EvaluateGate(cp, s); got != SelfApprove {
		t.Fatalf("default trust 0.5 should give threshold 0.75: %s", got)
	}
}
