// Package agent defines the generative collaborators the workflow engine
// drives: agents that produce structured phase results and a reviewer that
// scores milestone-sized partial output.
package agent

import "context"

// TaskRequest carries one sub-task's input to an agent.
type TaskRequest struct {
	SessionID string         `json:"session_id"`
	Phase     string         `json:"phase"`
	Actor     string         `json:"actor"`
	Task      string         `json:"task"`
	Prompt    string         `json:"prompt"`
	Context   map[string]any `json:"context"`
	Feedback  string         `json:"feedback,omitempty"`
}

// TaskResult is an agent's structured result. Raw preserves the model text
// for debugging; Output is what the engine stores.
type TaskResult struct {
	Output map[string]any `json:"output"`
	Raw    string         `json:"raw,omitempty"`
}

// ChunkSink receives raw streamed text fragments as an agent produces them.
// A nil sink disables streaming.
type ChunkSink func(chunk string)

// Agent produces a structured result for one sub-task, optionally streaming
// raw text through the sink while generating.
type Agent interface {
	Name() string
	Run(ctx context.Context, req *TaskRequest, sink ChunkSink) (*TaskResult, error)
}

// Registry maps workflow actor roles to agents.
type Registry struct {
	agents map[string]Agent // name → agent
	roles  map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]Agent),
		roles:  make(map[string]string),
	}
}

// Register adds an agent to the registry.
func (r *Registry) Register(a Agent) {
	r.agents[a.Name()] = a
}

// MapRole maps an actor role to a registered agent name.
func (r *Registry) MapRole(role, agentName string) {
	r.roles[role] = agentName
}

// ForRole returns the agent serving a role, falling back to the mock agent
// when no mapping exists.
func (r *Registry) ForRole(role string) (Agent, error) {
	name, ok := r.roles[role]
	if !ok {
		name = "mock"
	}
	a, ok := r.agents[name]
	if !ok {
		if mock, exists := r.agents["mock"]; exists {
			return mock, nil
		}
		return nil, &NoAgentError{Role: role}
	}
	return a, nil
}

// NoAgentError is returned when no agent is registered for a role.
type NoAgentError struct {
	Role string
}

func (e *NoAgentError) Error() string {
	return "no agent registered for role: " + e.Role
}
