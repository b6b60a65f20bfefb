package engine

import (
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"
)

// RenderTemplate renders a template string with pongo2. Strings without
// template syntax pass through untouched.
func RenderTemplate(tmpl string, ctx map[string]any) (string, error) {
	if !strings.Contains(tmpl, "{{") && !strings.Contains(tmpl, "{%") {
		return tmpl, nil
	}
	tpl, err := pongo2.FromString(tmpl)
	if err != nil {
		return tmpl, err
	}
	out, err := tpl.Execute(pongo2.Context(ctx))
	if err != nil {
		return tmpl, err
	}
	return out, nil
}

// checkpointContext renders a checkpoint's context template over the
// session's outputs and appends the confidence line and any outstanding
// flag reasons, so the decision-maker always sees both.
func checkpointContext(cp *CheckpointDef, sess *Session) string {
	rendered, err := RenderTemplate(cp.Context, map[string]any{
		"brief":      sess.Brief,
		"outputs":    sess.Outputs(),
		"confidence": sess.Confidence(),
	})
	if err != nil {
		rendered = cp.Context
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(rendered))
	fmt.Fprintf(&sb, "\n\nConfidence: %.0f%%", sess.Confidence()*100)
	for _, flag := range sess.Flags() {
		sb.WriteString("\nFlag: ")
		sb.WriteString(flag.Reason)
		if flag.Critical {
			sb.WriteString(" (critical)")
		}
	}
	return sb.String()
}
