package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// MockAgent returns deterministic structured results so the full workflow
// can run without a model backend.
type MockAgent struct {
	// Fail makes every Run return an error, for failure-path tests.
	Fail error
}

func NewMockAgent() *MockAgent {
	return &MockAgent{}
}

func (m *MockAgent) Name() string {
	return "mock"
}

func (m *MockAgent) Run(ctx context.Context, req *TaskRequest, sink ChunkSink) (*TaskResult, error) {
	if m.Fail != nil {
		return nil, m.Fail
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var output map[string]any
	switch req.Task {
	case "scoping":
		output = map[string]any{
			"summary":      fmt.Sprintf("[mock] scope for brief: %.40s", req.Prompt),
			"deliverables": []any{"concept", "visual language", "prototype"},
			"audience":     "general",
		}
	case "kickoff":
		output = map[string]any{
			"direction": "[mock] bold, minimal, high-contrast direction",
		}
	case "concept":
		output = map[string]any{
			"summary":  "[mock] card-based layout with a strong hero",
			"sections": []any{"hero", "features", "footer"},
		}
	case "visual":
		output = map[string]any{
			"summary": "[mock] monochrome palette, generous whitespace",
			"palette": []any{"#111111", "#fafafa"},
		}
	case "ponder":
		output = map[string]any{
			"notes": "[mock] direction holds against the brief",
		}
	case "cross_critique":
		output = map[string]any{
			"alignment": "[mock] concept and visual language agree",
			"ok":        true,
		}
	case "implementing":
		output = map[string]any{
			"components":     []any{"hero", "features", "footer"},
			"notes":          "[mock] implemented per concept",
			"html_prototype": "<!doctype html><main>mock prototype</main>",
		}
	case "senior_review":
		output = map[string]any{
			"verdict": "pass",
			"notes":   "[mock] matches the approved direction",
		}
	case "reviewing":
		output = map[string]any{
			"report": "[mock] quality report: ship it",
			"score":  8,
		}
	default:
		output = map[string]any{
			"summary": fmt.Sprintf("[mock] result for task %q", req.Task),
		}
	}
	if req.Feedback != "" {
		output["revised"] = true
	}

	raw, _ := json.Marshal(output)
	if sink != nil {
		// Stream in small chunks so extractor wiring sees split markers
		// and escapes, the way a real model stream would arrive.
		const chunkSize = 7
		for i := 0; i < len(raw); i += chunkSize {
			end := i + chunkSize
			if end > len(raw) {
				end = len(raw)
			}
			sink(string(raw[i:end]))
		}
	}

	return &TaskResult{Output: output, Raw: string(raw)}, nil
}

// MockReviewer returns canned verdicts keyed by "actor/milestone", falling
// back to a passing review.
type MockReviewer struct {
	Verdicts map[string]*Review
	// Fail makes every Review call return an error.
	Fail error
}

func NewMockReviewer() *MockReviewer {
	return &MockReviewer{Verdicts: make(map[string]*Review)}
}

func (m *MockReviewer) Review(ctx context.Context, actor, milestone, summary, reference string) (*Review, error) {
	if m.Fail != nil {
		return nil, m.Fail
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v, ok := m.Verdicts[actor+"/"+milestone]; ok {
		return v, nil
	}
	if v, ok := m.Verdicts[actor]; ok {
		return v, nil
	}
	return &Review{OK: true, Score: 8, Feedback: ""}, nil
}
