package engine

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// TerminalPhase is the reserved name a phase routes to when the workflow
// is finished.
const TerminalPhase = "complete"

//go:embed workflow.yaml
var defaultWorkflowYAML string

// GraphDSL represents the parsed YAML workflow definition.
type GraphDSL struct {
	Name        string     `yaml:"name"`
	Version     string     `yaml:"version"`
	Description string     `yaml:"description"`
	Phases      []PhaseDef `yaml:"phases"`
}

// PhaseDef represents one phase in the DSL.
type PhaseDef struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"` // work / checkpoint / revision
	Next string `yaml:"next"` // default successor; empty infers the following phase

	// Work and revision phases.
	Handler   string `yaml:"handler"`    // registered handler name
	OutputKey string `yaml:"output_key"` // defaults to ID; revisions overwrite the phase they revise

	// Checkpoint phases.
	Checkpoint *CheckpointDef `yaml:"checkpoint"`
}

// CheckpointDef configures a suspension point.
type CheckpointDef struct {
	Title      string  `yaml:"title"`
	Question   string  `yaml:"question"`
	Context    string  `yaml:"context"` // pongo2 template over session outputs
	Fixed      bool    `yaml:"fixed"`
	SkipAbove  float64 `yaml:"skip_above"` // >0: bypass entirely when confidence ≥ this
	Gatekeeper string  `yaml:"gatekeeper"`
	OnConfirm  string  `yaml:"on_confirm"` // defaults to the phase's next
	OnRevise   string  `yaml:"on_revise"`  // empty: revise continues forward (fixed checkpoints)
}

// Graph is the validated phase graph.
type Graph struct {
	Name   string
	Entry  string
	Phases map[string]*PhaseDef
	Order  []string
}

// ParseGraph parses and validates a YAML workflow definition.
func ParseGraph(src string) (*Graph, error) {
	var dsl GraphDSL
	if err := yaml.Unmarshal([]byte(src), &dsl); err != nil {
		return nil, fmt.Errorf("parse workflow YAML: %w", err)
	}
	if len(dsl.Phases) == 0 {
		return nil, fmt.Errorf("workflow has no phases")
	}

	g := &Graph{
		Name:   dsl.Name,
		Phases: make(map[string]*PhaseDef, len(dsl.Phases)),
		Order:  make([]string, 0, len(dsl.Phases)),
	}

	for i := range dsl.Phases {
		p := &dsl.Phases[i]
		if p.ID == "" {
			return nil, fmt.Errorf("phase at index %d has no id", i)
		}
		if p.ID == TerminalPhase {
			return nil, fmt.Errorf("phase id %q is reserved", TerminalPhase)
		}
		if _, exists := g.Phases[p.ID]; exists {
			return nil, fmt.Errorf("duplicate phase id: %s", p.ID)
		}
		switch p.Kind {
		case "work", "revision":
			if p.Handler == "" {
				return nil, fmt.Errorf("phase %s: %s phase needs a handler", p.ID, p.Kind)
			}
			if p.OutputKey == "" {
				p.OutputKey = p.ID
			}
		case "checkpoint":
			if p.Checkpoint == nil {
				return nil, fmt.Errorf("phase %s: checkpoint phase needs a checkpoint block", p.ID)
			}
		default:
			return nil, fmt.Errorf("phase %s: unknown kind %q", p.ID, p.Kind)
		}
		g.Phases[p.ID] = p
		g.Order = append(g.Order, p.ID)
	}

	// Infer linear succession where next is unset; the last phase defaults
	// to the terminal phase.
	for i, id := range g.Order {
		p := g.Phases[id]
		if p.Next == "" {
			if i+1 < len(g.Order) {
				p.Next = g.Order[i+1]
			} else {
				p.Next = TerminalPhase
			}
		}
	}

	// Validate every route target.
	for _, id := range g.Order {
		p := g.Phases[id]
		if err := g.checkTarget(id, "next", p.Next); err != nil {
			return nil, err
		}
		if p.Checkpoint != nil {
			if p.Checkpoint.OnConfirm != "" {
				if err := g.checkTarget(id, "on_confirm", p.Checkpoint.OnConfirm); err != nil {
					return nil, err
				}
			}
			if p.Checkpoint.OnRevise != "" {
				if err := g.checkTarget(id, "on_revise", p.Checkpoint.OnRevise); err != nil {
					return nil, err
				}
			}
		}
	}

	g.Entry = g.Order[0]
	return g, nil
}

func (g *Graph) checkTarget(phaseID, field, target string) error {
	if target == TerminalPhase {
		return nil
	}
	if _, ok := g.Phases[target]; !ok {
		return fmt.Errorf("phase %s: %s references unknown phase %q", phaseID, field, target)
	}
	return nil
}

// Phase returns the definition for a phase id.
func (g *Graph) Phase(id string) *PhaseDef {
	return g.Phases[id]
}

// ConfirmTarget returns where a confirmed (or self-approved) checkpoint
// routes to.
func (p *PhaseDef) ConfirmTarget() string {
	if p.Checkpoint != nil && p.Checkpoint.OnConfirm != "" {
		return p.Checkpoint.OnConfirm
	}
	return p.Next
}

// ReviseTarget returns where a revise decision routes to; forward routing
// (same as confirm) when the checkpoint defines no revision loop.
func (p *PhaseDef) ReviseTarget() string {
	if p.Checkpoint != nil && p.Checkpoint.OnRevise != "" {
		return p.Checkpoint.OnRevise
	}
	return p.ConfirmTarget()
}

// DefaultGraph parses the built-in design workflow.
func DefaultGraph() (*Graph, error) {
	return ParseGraph(defaultWorkflowYAML)
}
