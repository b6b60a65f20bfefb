package engine

import (
	"sync"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRunning          Status = "running"
	StatusAwaitingDecision Status = "awaiting_decision"
	StatusComplete         Status = "complete"
	StatusError            Status = "error"
)

// Decision actions accepted at a checkpoint.
const (
	ActionConfirm = "confirm"
	ActionRevise  = "revise"
)

// Decision is an external resolution of a pending checkpoint.
type Decision struct {
	Action   string
	Feedback string
}

// MilestoneFlag is a structured note raised by a review step on a sub-task's
// partial output. Flags accumulate during a phase and are cleared exactly
// once, at the next checkpoint resolution.
type MilestoneFlag struct {
	Reason   string `json:"reason"`
	Critical bool   `json:"critical"`
}

// DefaultTrust applies to actors absent from a session's trust map.
const DefaultTrust = 0.5

// pendingCheckpoint parks a suspended phase until a decision arrives.
// The channel has capacity 1 so the deciding caller never blocks.
type pendingCheckpoint struct {
	id       string
	decision chan Decision
	resolved bool
}

// Session is one workflow instance. All mutable state is guarded by mu;
// the executor goroutine owns phase progression while concurrent sub-tasks
// append flags and write disjoint output keys through the accessors below.
type Session struct {
	ID    string
	Brief string

	mu             sync.Mutex
	trust          map[string]float64
	confidence     float64
	status         Status
	currentPhase   string
	flags          []MilestoneFlag
	outputs        map[string]map[string]any
	lastDecision   *Decision
	pending        *pendingCheckpoint
	revisionRounds map[string]int
	failure        string
}

// NewSession creates a running session with initial confidence.
// Session ids use the short uuid form.
func NewSession(brief string, trust map[string]float64) *Session {
	t := make(map[string]float64, len(trust))
	for actor, v := range trust {
		t[actor] = v
	}
	return &Session{
		ID:             uuid.New().String()[:8],
		Brief:          brief,
		trust:          t,
		confidence:     InitialConfidence,
		status:         StatusRunning,
		outputs:        make(map[string]map[string]any),
		revisionRounds: make(map[string]int),
	}
}

// TrustOf returns the configured trust for an actor, or the default.
func (s *Session) TrustOf(actor string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.trust[actor]; ok {
		return v
	}
	return DefaultTrust
}

// Confidence returns the current confidence score.
func (s *Session) Confidence() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confidence
}

// ApplyApprove raises confidence by the confirm delta.
func (s *Session) ApplyApprove() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confidence = OnApprove(s.confidence)
	return s.confidence
}

// ApplyRevise lowers confidence by the revise penalty.
func (s *Session) ApplyRevise() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confidence = OnRevise(s.confidence)
	return s.confidence
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// CurrentPhase returns the phase the executor is in.
func (s *Session) CurrentPhase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPhase
}

func (s *Session) setPhase(phase string) {
	s.mu.Lock()
	s.currentPhase = phase
	s.mu.Unlock()
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Session) setFailure(reason string) {
	s.mu.Lock()
	s.status = StatusError
	s.failure = reason
	s.mu.Unlock()
}

// Failure returns the terminal failure reason, empty unless status is error.
func (s *Session) Failure() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// AppendFlag records a milestone flag. Safe under concurrent sub-task hooks.
func (s *Session) AppendFlag(flag MilestoneFlag) {
	s.mu.Lock()
	s.flags = append(s.flags, flag)
	s.mu.Unlock()
}

// Flags returns a copy of the outstanding flags.
func (s *Session) Flags() []MilestoneFlag {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MilestoneFlag, len(s.flags))
	copy(out, s.flags)
	return out
}

// HasCriticalFlag reports whether any outstanding flag is critical.
func (s *Session) HasCriticalFlag() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.flags {
		if f.Critical {
			return true
		}
	}
	return false
}

// ClearFlags empties the flag list. Called exactly once per checkpoint
// resolution, self-approved or not.
func (s *Session) ClearFlags() {
	s.mu.Lock()
	s.flags = nil
	s.mu.Unlock()
}

// SetOutput writes a phase's produced result. Re-execution of a revision
// loop overwrites the previous result for the same key.
func (s *Session) SetOutput(key string, result map[string]any) {
	s.mu.Lock()
	s.outputs[key] = result
	s.mu.Unlock()
}

// Output returns one phase's result and whether it exists.
func (s *Session) Output(key string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.outputs[key]
	return r, ok
}

// Outputs returns a shallow copy of the phase-name to result mapping.
func (s *Session) Outputs() map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]any, len(s.outputs))
	for k, v := range s.outputs {
		out[k] = v
	}
	return out
}

// LastDecision returns the most recent decision applied to a checkpoint.
func (s *Session) LastDecision() *Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDecision
}

// suspend registers a pending checkpoint and flips status to
// awaiting_decision, returning the channel the executor blocks on.
func (s *Session) suspend(checkpointID string) <-chan Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &pendingCheckpoint{
		id:       checkpointID,
		decision: make(chan Decision, 1),
	}
	s.status = StatusAwaitingDecision
	return s.pending.decision
}

// Decide resolves the pending checkpoint. Returns false when no decision is
// pending or the checkpoint was already resolved; a second call against the
// same checkpoint is rejected.
func (s *Session) Decide(action, feedback string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.resolved {
		return false
	}
	if action != ActionConfirm && action != ActionRevise {
		return false
	}
	s.pending.resolved = true
	d := Decision{Action: action, Feedback: feedback}
	s.lastDecision = &d
	s.pending.decision <- d
	return true
}

// resumed clears the pending checkpoint after the executor consumes the
// decision and flips status back to running.
func (s *Session) resumed() {
	s.mu.Lock()
	s.pending = nil
	s.status = StatusRunning
	s.mu.Unlock()
}

// PendingCheckpointID returns the suspended checkpoint's id, empty when the
// session is not awaiting a decision.
func (s *Session) PendingCheckpointID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.resolved {
		return ""
	}
	return s.pending.id
}

// nextRevisionRound bumps and returns the revise count for a checkpoint.
func (s *Session) nextRevisionRound(checkpointID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revisionRounds[checkpointID]++
	return s.revisionRounds[checkpointID]
}
