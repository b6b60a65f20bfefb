package engine

// GateResult is the checkpoint gate's verdict for a suspension point.
type GateResult int

const (
	// SelfApprove resolves the checkpoint without an external decision.
	SelfApprove GateResult = iota
	// RequireDecision suspends the session until a decision arrives.
	RequireDecision
)

func (g GateResult) String() string {
	if g == SelfApprove {
		return "self_approve"
	}
	return "require_decision"
}

// EvaluateGate decides whether a checkpoint pauses for an external decision.
// Fixed checkpoints always pause. Adaptive checkpoints self-approve iff no
// outstanding flag is critical and confidence clears the gatekeeper's
// adaptive threshold. Deterministic given session state.
func EvaluateGate(cp *CheckpointDef, sess *Session) GateResult {
	if cp.Fixed {
		return RequireDecision
	}
	if sess.HasCriticalFlag() {
		return RequireDecision
	}
	if sess.Confidence() >= AdaptiveThreshold(sess.TrustOf(cp.Gatekeeper)) {
		return SelfApprove
	}
	return RequireDecision
}
