package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	DefaultGeminiModel = "gemini-2.5-flash"

	maxAttempts  = 3
	retryBackoff = time.Second
)

// GeminiAgent runs tasks against the Gemini API, streaming generated text
// through the chunk sink and decoding the final response through the
// structured fallback chain.
type GeminiAgent struct {
	client  *genai.Client
	model   string
	prompts *PromptBuilder
	logger  *zap.SugaredLogger
}

// NewGeminiAgent creates a Gemini-backed agent.
func NewGeminiAgent(ctx context.Context, apiKey, model string, logger *zap.SugaredLogger) (*GeminiAgent, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiAgent{
		client:  client,
		model:   model,
		prompts: NewPromptBuilder(),
		logger:  logger,
	}, nil
}

func (g *GeminiAgent) Name() string {
	return "gemini"
}

// Run generates a structured result, retrying transient failures with
// exponential backoff. When all attempts exhaust, the last error propagates
// to the caller as a phase-level failure.
func (g *GeminiAgent) Run(ctx context.Context, req *TaskRequest, sink ChunkSink) (*TaskResult, error) {
	prompt := g.prompts.Build(req)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := g.generate(ctx, prompt, sink)
		if err == nil {
			out, step, decErr := DecodeStructured(raw)
			if decErr != nil {
				g.logger.Warnw("structured result degraded",
					"actor", req.Actor,
					"phase", req.Phase,
					"decode_step", step.String(),
					"reason", decErr,
				)
			}
			return &TaskResult{Output: out, Raw: raw}, nil
		}

		lastErr = err
		g.logger.Warnw("gemini call failed",
			"actor", req.Actor,
			"phase", req.Phase,
			"attempt", attempt,
			"error", err,
		)
		if attempt == maxAttempts {
			break
		}

		backoff := retryBackoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("gemini call failed after %d attempts: %w", maxAttempts, lastErr)
}

func (g *GeminiAgent) generate(ctx context.Context, prompt string, sink ChunkSink) (string, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var sb strings.Builder
	for chunk, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), cfg) {
		if err != nil {
			return "", err
		}
		text := chunk.Text()
		if text == "" {
			continue
		}
		sb.WriteString(text)
		if sink != nil {
			sink(text)
		}
	}
	return sb.String(), nil
}
