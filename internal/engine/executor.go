package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studioflow/orchestrator/internal/agent"
	"github.com/studioflow/orchestrator/internal/event"
	"github.com/studioflow/orchestrator/internal/store"
)

// ErrEmptyBrief rejects session creation without an input payload.
var ErrEmptyBrief = errors.New("brief must not be empty")

// Config wires a Manager's collaborators. Everything is injected; the
// engine holds no process-global state.
type Config struct {
	Graph    *Graph
	Handlers map[string]HandlerFunc
	Agents   *agent.Registry
	Reviewer agent.Reviewer
	Store    store.Store
	Bus      *event.Bus
	Logger   *zap.SugaredLogger

	// MaxRevisionRounds caps revise loops per checkpoint. Zero means
	// unlimited; on reaching the cap a revise is routed forward as if
	// confirmed, with a warning.
	MaxRevisionRounds int
}

// Snapshot is the externally visible summary of a session.
type Snapshot struct {
	SessionID           string  `json:"session_id"`
	Status              Status  `json:"status"`
	CurrentPhase        string  `json:"current_phase"`
	PendingCheckpointID *string `json:"pending_checkpoint_id"`
	Confidence          float64 `json:"confidence"`
}

// Manager creates sessions and drives each one's executor goroutine.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session

	runCtx context.Context
}

// NewManager validates the graph against the handler registry.
func NewManager(cfg Config) (*Manager, error) {
	for _, id := range cfg.Graph.Order {
		p := cfg.Graph.Phase(id)
		if p.Handler == "" {
			continue
		}
		if _, ok := cfg.Handlers[p.Handler]; !ok {
			return nil, fmt.Errorf("phase %s references unregistered handler %q", id, p.Handler)
		}
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}, nil
}

// Start binds the manager to its lifecycle context. Session executors run
// under this context, not under the request that created them.
func (m *Manager) Start(ctx context.Context) {
	m.runCtx = ctx
}

// Create starts a new session and returns its id. The workflow begins
// executing immediately on its own goroutine.
func (m *Manager) Create(brief string, trust map[string]float64) (string, error) {
	if brief == "" {
		return "", ErrEmptyBrief
	}
	if m.runCtx == nil {
		return "", errors.New("manager not started")
	}

	sess := NewSession(brief, trust)
	queue := m.cfg.Bus.Open(sess.ID)

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	rt := &Runtime{
		Agents:      m.cfg.Agents,
		Coordinator: NewCoordinator(m.cfg.Reviewer, m.cfg.Logger),
		Queue:       queue,
		Logger:      m.cfg.Logger,
	}

	m.cfg.Logger.Infow("session created", "session_id", sess.ID)
	go m.run(m.runCtx, rt, sess)
	return sess.ID, nil
}

func (m *Manager) session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Decide resolves a session's pending checkpoint. False when the session is
// unknown, nothing is pending, or the checkpoint was already resolved.
func (m *Manager) Decide(sessionID, action, feedback string) bool {
	sess, ok := m.session(sessionID)
	if !ok {
		return false
	}
	return sess.Decide(action, feedback)
}

// Events attaches a new consumer to a session's event queue.
func (m *Manager) Events(sessionID string) (*event.Subscription, bool) {
	q, ok := m.cfg.Bus.Lookup(sessionID)
	if !ok {
		return nil, false
	}
	return q.Attach(), true
}

// Snapshot reports a session's status, phase, and pending checkpoint.
func (m *Manager) Snapshot(sessionID string) (*Snapshot, bool) {
	sess, ok := m.session(sessionID)
	if !ok {
		return nil, false
	}
	snap := &Snapshot{
		SessionID:    sess.ID,
		Status:       sess.Status(),
		CurrentPhase: sess.CurrentPhase(),
		Confidence:   sess.Confidence(),
	}
	if id := sess.PendingCheckpointID(); id != "" {
		snap.PendingCheckpointID = &id
	}
	return snap, true
}

// Outputs returns the session's phase-name to result mapping.
func (m *Manager) Outputs(sessionID string) (map[string]map[string]any, bool) {
	sess, ok := m.session(sessionID)
	if !ok {
		return nil, false
	}
	return sess.Outputs(), true
}

// run drives one session from the entry phase to a terminal status.
func (m *Manager) run(ctx context.Context, rt *Runtime, sess *Session) {
	phase := m.cfg.Graph.Entry
	for {
		if phase == TerminalPhase {
			m.finish(ctx, rt, sess)
			return
		}

		p := m.cfg.Graph.Phase(phase)

		switch p.Kind {
		case "work", "revision":
			sess.setPhase(phase)
			rt.Queue.Publish(event.KindPhaseChange, map[string]any{
				"phase": phase,
				"kind":  p.Kind,
			})
			handler := m.cfg.Handlers[p.Handler]
			out, err := handler(ctx, rt, sess)
			if err != nil {
				m.fail(ctx, rt, sess, err)
				return
			}
			sess.SetOutput(p.OutputKey, out)
			m.persist(ctx, sess)
			phase = p.Next

		case "checkpoint":
			next, err := m.runCheckpoint(ctx, rt, sess, p)
			if err != nil {
				m.fail(ctx, rt, sess, err)
				return
			}
			phase = next
		}
	}
}

// runCheckpoint evaluates one suspension point and returns the next phase.
func (m *Manager) runCheckpoint(ctx context.Context, rt *Runtime, sess *Session, p *PhaseDef) (string, error) {
	cp := p.Checkpoint

	// A micro-checkpoint with skip_above is bypassed entirely above the
	// bar: no gate, no flag clearing, no events.
	if !cp.Fixed && cp.SkipAbove > 0 && sess.Confidence() >= cp.SkipAbove {
		m.cfg.Logger.Debugw("checkpoint bypassed",
			"session_id", sess.ID,
			"checkpoint", p.ID,
			"confidence", sess.Confidence(),
		)
		return p.ConfirmTarget(), nil
	}

	sess.setPhase(p.ID)
	rt.Queue.Publish(event.KindPhaseChange, map[string]any{
		"phase": p.ID,
		"kind":  p.Kind,
	})

	if EvaluateGate(cp, sess) == SelfApprove {
		sess.ClearFlags()
		m.cfg.Logger.Infow("checkpoint self-approved",
			"session_id", sess.ID,
			"checkpoint", p.ID,
			"confidence", sess.Confidence(),
		)
		return p.ConfirmTarget(), nil
	}

	checkpointID := uuid.New().String()[:8]
	decisionCh := sess.suspend(checkpointID)
	rt.Queue.Publish(event.KindConfirmationPrompt, map[string]any{
		"id":       checkpointID,
		"phase":    p.ID,
		"title":    cp.Title,
		"question": cp.Question,
		"context":  checkpointContext(cp, sess),
		"options":  []string{ActionConfirm, ActionRevise},
	})
	m.cfg.Logger.Infow("awaiting decision",
		"session_id", sess.ID,
		"checkpoint", p.ID,
		"checkpoint_id", checkpointID,
	)

	var d Decision
	select {
	case d = <-decisionCh:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	rt.Queue.Publish(event.KindConfirmationCleared, map[string]any{
		"id":     checkpointID,
		"action": d.Action,
	})
	sess.ClearFlags()
	sess.resumed()
	m.persist(ctx, sess)

	if d.Action == ActionConfirm {
		sess.ApplyApprove()
		return p.ConfirmTarget(), nil
	}

	sess.ApplyRevise()
	if cp.OnRevise == "" {
		// No revision loop here (fixed checkpoints): the feedback is
		// recorded and the flow continues forward.
		return p.ConfirmTarget(), nil
	}

	round := sess.nextRevisionRound(p.ID)
	if m.cfg.MaxRevisionRounds > 0 && round > m.cfg.MaxRevisionRounds {
		m.cfg.Logger.Warnw("revision round cap reached, continuing forward",
			"session_id", sess.ID,
			"checkpoint", p.ID,
			"rounds", round,
		)
		rt.Queue.Publish(event.KindActivity, map[string]any{
			"actor":   "system",
			"message": fmt.Sprintf("revision cap reached at %s, continuing forward", p.ID),
			"level":   "warning",
		})
		return p.ConfirmTarget(), nil
	}
	return cp.OnRevise, nil
}

func (m *Manager) finish(ctx context.Context, rt *Runtime, sess *Session) {
	sess.setPhase(TerminalPhase)
	sess.setStatus(StatusComplete)
	m.persist(ctx, sess)
	rt.Queue.Publish(event.KindPhaseChange, map[string]any{
		"phase": TerminalPhase,
		"kind":  "terminal",
	})
	rt.Queue.Publish(event.KindComplete, map[string]any{
		"session_id": sess.ID,
		"confidence": sess.Confidence(),
	})
	m.cfg.Logger.Infow("session complete", "session_id", sess.ID)
}

func (m *Manager) fail(ctx context.Context, rt *Runtime, sess *Session, err error) {
	sess.setFailure(err.Error())
	m.persist(ctx, sess)
	rt.Queue.Publish(event.KindError, map[string]any{
		"session_id": sess.ID,
		"reason":     err.Error(),
	})
	m.cfg.Logger.Errorw("session failed",
		"session_id", sess.ID,
		"phase", sess.CurrentPhase(),
		"error", err,
	)
}

// persist saves a best-effort snapshot; a store failure is never fatal.
func (m *Manager) persist(ctx context.Context, sess *Session) {
	if m.cfg.Store == nil {
		return
	}
	state := &store.SessionState{
		ID:         sess.ID,
		Status:     string(sess.Status()),
		Phase:      sess.CurrentPhase(),
		Confidence: sess.Confidence(),
		Brief:      sess.Brief,
		Outputs:    sess.Outputs(),
	}
	if err := m.cfg.Store.Save(ctx, state); err != nil {
		m.cfg.Logger.Warnw("snapshot save failed",
			"session_id", sess.ID,
			"error", err,
		)
	}
}
