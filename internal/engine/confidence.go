package engine

import "math"

// InitialConfidence is assigned to every new session. Confidence is the sole
// signal carried across checkpoints; it is never reset within a session.
const InitialConfidence = 0.5

const (
	approveDelta = 0.10
	reviseDelta  = 0.20
)

// AdaptiveThreshold computes the self-approval bar for a gatekeeper with the
// given trust. Trust scales the bar linearly from 1.0 (zero trust, adaptive
// checkpoints always pause) through 0.75 at the default trust down to the
// 0.5 floor at full trust.
func AdaptiveThreshold(trust float64) float64 {
	return math.Max(0.5, 1.0-trust/2)
}

// OnApprove returns the confidence after a confirm decision, clamped to 1.
func OnApprove(confidence float64) float64 {
	return math.Min(1.0, confidence+approveDelta)
}

// OnRevise returns the confidence after a revise decision, clamped to 0.
func OnRevise(confidence float64) float64 {
	return math.Max(0.0, confidence-reviseDelta)
}
