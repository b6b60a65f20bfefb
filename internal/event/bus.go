// Package event carries per-session workflow progress as an ordered stream
// of typed events, with enough retained state to resynchronize a consumer
// that reconnects after losing its connection.
package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind tags an event with its payload shape.
type Kind string

const (
	KindPhaseChange         Kind = "phase_change"
	KindActivity            Kind = "activity"
	KindStatusUpdate        Kind = "status_update"
	KindConfirmationPrompt  Kind = "confirmation_prompt"
	KindConfirmationCleared Kind = "confirmation_cleared"
	KindPartialOutput       Kind = "partial_output"
	KindOutputReady         Kind = "output_ready"
	KindComplete            Kind = "complete"
	KindError               Kind = "error"
	KindKeepAlive           Kind = "keep_alive"
)

// Event is an immutable, sequence-numbered progress record. Never mutated
// after Publish assigns its sequence number.
type Event struct {
	Kind      Kind           `json:"kind"`
	SessionID string         `json:"session_id"`
	Seq       int64          `json:"seq"`
	Timestamp int64          `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Terminal reports whether no further events follow this one.
func (e *Event) Terminal() bool {
	return e.Kind == KindComplete || e.Kind == KindError
}

// ErrQueueClosed is returned by Subscription.Next after a terminal event
// has been delivered to that subscription.
var ErrQueueClosed = errors.New("event queue closed")

// DefaultKeepAlive is the idle interval after which a consumer receives a
// synthetic keep-alive event so transport connections are not reaped.
const DefaultKeepAlive = 30 * time.Second

// Bus owns one Queue per session.
type Bus struct {
	mu        sync.RWMutex
	queues    map[string]*Queue
	keepAlive time.Duration
	logger    *zap.SugaredLogger
}

// NewBus creates a bus with the default keep-alive interval.
func NewBus(logger *zap.SugaredLogger) *Bus {
	return NewBusWithKeepAlive(logger, DefaultKeepAlive)
}

// NewBusWithKeepAlive creates a bus with a custom keep-alive interval.
func NewBusWithKeepAlive(logger *zap.SugaredLogger, keepAlive time.Duration) *Bus {
	return &Bus{
		queues:    make(map[string]*Queue),
		keepAlive: keepAlive,
		logger:    logger,
	}
}

// Open creates (or returns) the queue for a session.
func (b *Bus) Open(sessionID string) *Queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[sessionID]; ok {
		return q
	}
	q := &Queue{
		sessionID: sessionID,
		keepAlive: b.keepAlive,
		notify:    make(chan struct{}),
		logger:    b.logger,
	}
	b.queues[sessionID] = q
	return q
}

// Lookup returns the queue for a session, if one exists.
func (b *Bus) Lookup(sessionID string) (*Queue, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.queues[sessionID]
	return q, ok
}

// Queue is an unbounded FIFO of one session's events. Publish never blocks
// the producer; any number of concurrent subscriptions drain it, each event
// delivered to exactly one subscription, in publish order.
type Queue struct {
	sessionID string
	keepAlive time.Duration
	logger    *zap.SugaredLogger

	mu     sync.Mutex
	events []*Event
	seq    int64
	notify chan struct{} // closed and replaced on every publish

	// Recovery cache: the only state safe to resend to a reconnecting
	// consumer. Ordinary progress events are not replayed.
	lastPhase     map[string]any
	pendingPrompt *Event
	terminal      *Event
}

// Publish appends an event, stamps its sequence number, and updates the
// recovery cache. Safe for use from concurrent sub-task goroutines.
func (q *Queue) Publish(kind Kind, payload map[string]any) {
	q.mu.Lock()
	q.seq++
	evt := &Event{
		Kind:      kind,
		SessionID: q.sessionID,
		Seq:       q.seq,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}

	switch kind {
	case KindPhaseChange:
		q.lastPhase = payload
	case KindConfirmationPrompt:
		q.pendingPrompt = evt
	case KindConfirmationCleared:
		q.pendingPrompt = nil
	case KindComplete, KindError:
		q.terminal = evt
	}

	q.events = append(q.events, evt)
	close(q.notify)
	q.notify = make(chan struct{})
	q.mu.Unlock()

	q.logger.Debugw("event published",
		"session_id", q.sessionID,
		"kind", kind,
		"seq", evt.Seq,
	)
}

// PendingPrompt returns the still-open confirmation prompt, if any.
func (q *Queue) PendingPrompt() (*Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pendingPrompt == nil {
		return nil, false
	}
	return q.pendingPrompt, true
}

// Attach starts a new subscription. The subscription first replays the
// current phase and, when a decision is still pending, the open confirmation
// prompt, so a reconnecting observer is never stuck waiting for events that
// died with its previous connection. If the session already ended, the
// terminal event is replayed last.
func (q *Queue) Attach() *Subscription {
	q.mu.Lock()
	defer q.mu.Unlock()

	var replay []*Event
	if q.lastPhase != nil {
		replay = append(replay, &Event{
			Kind:      KindPhaseChange,
			SessionID: q.sessionID,
			Timestamp: time.Now().UnixMilli(),
			Payload:   q.lastPhase,
		})
	}
	if q.pendingPrompt != nil {
		replay = append(replay, q.pendingPrompt)
	}
	if q.terminal != nil {
		replay = append(replay, q.terminal)
	}
	return &Subscription{queue: q, replay: replay}
}

// Subscription is one consumer's view of the queue.
type Subscription struct {
	queue  *Queue
	replay []*Event
	closed bool
}

// Next blocks until an event is available, the idle interval elapses
// (yielding a synthetic keep-alive), or ctx is done. After a terminal event
// has been returned, Next returns ErrQueueClosed.
func (s *Subscription) Next(ctx context.Context) (*Event, error) {
	if s.closed {
		return nil, ErrQueueClosed
	}

	if len(s.replay) > 0 {
		evt := s.replay[0]
		s.replay = s.replay[1:]
		if evt.Terminal() {
			s.closed = true
		}
		return evt, nil
	}

	timer := time.NewTimer(s.queue.keepAlive)
	defer timer.Stop()

	for {
		s.queue.mu.Lock()
		if len(s.queue.events) > 0 {
			evt := s.queue.events[0]
			s.queue.events = s.queue.events[1:]
			s.queue.mu.Unlock()
			if evt.Terminal() {
				s.closed = true
			}
			return evt, nil
		}
		notify := s.queue.notify
		s.queue.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-notify:
		case <-timer.C:
			return &Event{
				Kind:      KindKeepAlive,
				SessionID: s.queue.sessionID,
				Timestamp: time.Now().UnixMilli(),
			}, nil
		}
	}
}
