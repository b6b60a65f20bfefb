package agent

import "context"

// Review is a reviewer's verdict on a milestone-sized partial result.
type Review struct {
	OK         bool   `json:"ok"`
	Score      int    `json:"score"`
	Feedback   string `json:"feedback"`
	NeedsHuman bool   `json:"needs_human"`
	Reason     string `json:"reason"`
}

// NeutralReview is the verdict substituted when a reviewer fails or returns
// something unparseable: passing, mid score, nothing to flag.
func NeutralReview() *Review {
	return &Review{OK: true, Score: 7}
}

// Reviewer scores a sub-task's milestone output against reference context.
type Reviewer interface {
	Review(ctx context.Context, actor, milestone, summary, reference string) (*Review, error)
}

// AgentReviewer asks a generative agent to score milestone output. Reviewer
// failures are surfaced to the caller; coordinators substitute the neutral
// verdict so a flaky reviewer never sinks a phase.
type AgentReviewer struct {
	agent Agent
}

func NewAgentReviewer(a Agent) *AgentReviewer {
	return &AgentReviewer{agent: a}
}

func (r *AgentReviewer) Review(ctx context.Context, actor, milestone, summary, reference string) (*Review, error) {
	req := &TaskRequest{
		Actor: "senior",
		Task:  "milestone_review",
		Prompt: "Review the milestone below against the reference context. " +
			"Answer with one JSON object: " +
			`{"ok": bool, "score": 0-10, "feedback": string, "needs_human": bool, "reason": string}` +
			"\n\nActor: " + actor +
			"\nMilestone: " + milestone +
			"\nSummary:\n" + summary +
			"\n\nReference:\n" + reference,
	}
	res, err := r.agent.Run(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	return ParseReview(res.Raw), nil
}

// ParseReview decodes a raw reviewer response through the structured fallback
// chain, filling unset fields from the neutral verdict.
func ParseReview(raw string) *Review {
	out, _, err := DecodeStructured(raw)
	if err != nil && len(out) == 0 {
		return NeutralReview()
	}

	r := NeutralReview()
	if v, ok := out["ok"].(bool); ok {
		r.OK = v
	}
	if v, ok := out["score"].(float64); ok {
		r.Score = int(v)
	}
	if v, ok := out["feedback"].(string); ok {
		r.Feedback = v
	}
	if v, ok := out["needs_human"].(bool); ok {
		r.NeedsHuman = v
	}
	if v, ok := out["reason"].(string); ok {
		r.Reason = v
	}
	return r
}
