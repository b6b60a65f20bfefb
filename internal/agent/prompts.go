package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"
)

// DefaultRolePrompts provides built-in system prompts for the design team.
var DefaultRolePrompts = map[string]string{
	"manager": `You are the design team's project manager. You interpret client
briefs, set direction, check cross-discipline alignment, and write quality
reports. Always answer with a single JSON object matching the requested shape.`,

	"senior": `You are a senior product designer. You produce design concepts,
audit implementations against the agreed direction, and review teammates'
milestone output. Always answer with a single JSON object matching the
requested shape.`,

	"visual": `You are a visual designer. You define visual language: palette,
typography, spacing, imagery. Always answer with a single JSON object
matching the requested shape.`,

	"junior": `You are a junior designer who implements prototypes. You turn an
approved concept and visual language into a concrete component list and a
self-contained html_prototype string. Always answer with a single JSON
object matching the requested shape.`,
}

const taskTemplate = `{{ role_prompt|safe }}

## Task
{{ task|safe }}

{% if context %}## Working context
{{ context|safe }}
{% endif %}{% if feedback %}## Revision feedback
The previous result was sent back with this feedback. Address it directly:
{{ feedback|safe }}
{% endif %}`

// PromptBuilder renders the full prompt for a task request.
type PromptBuilder struct {
	rolePrompts map[string]string
	tpl         *pongo2.Template
}

// NewPromptBuilder creates a builder with the default role prompts.
func NewPromptBuilder() *PromptBuilder {
	prompts := make(map[string]string, len(DefaultRolePrompts))
	for k, v := range DefaultRolePrompts {
		prompts[k] = v
	}
	return &PromptBuilder{
		rolePrompts: prompts,
		tpl:         pongo2.Must(pongo2.FromString(taskTemplate)),
	}
}

// SetRolePrompt overrides one role's system prompt.
func (b *PromptBuilder) SetRolePrompt(role, prompt string) {
	b.rolePrompts[role] = prompt
}

// Build renders role prompt, task instruction, upstream context, and any
// revision feedback into one prompt string.
func (b *PromptBuilder) Build(req *TaskRequest) string {
	out, err := b.tpl.Execute(pongo2.Context{
		"role_prompt": b.rolePrompts[req.Actor],
		"task":        req.Prompt,
		"context":     formatContext(req.Context),
		"feedback":    req.Feedback,
	})
	if err != nil {
		// Template execution over plain strings should not fail; degrade to
		// the raw instruction rather than losing the task.
		return req.Prompt
	}
	return strings.TrimSpace(out)
}

// formatContext renders upstream outputs as indented JSON blocks keyed by
// their phase name.
func formatContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	var sb strings.Builder
	for key, val := range ctx {
		data, err := json.MarshalIndent(val, "", "  ")
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "### %s\n%s\n\n", key, data)
	}
	return strings.TrimSpace(sb.String())
}
