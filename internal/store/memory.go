package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps session state in process memory. The default store.
type Memory struct {
	mu     sync.RWMutex
	states map[string]*SessionState
}

func NewMemory() *Memory {
	return &Memory{states: make(map[string]*SessionState)}
}

func (m *Memory) Save(ctx context.Context, state *SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[state.ID] = &cp
	return nil
}

func (m *Memory) Load(ctx context.Context, sessionID string) (*SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	cp := *state
	return &cp, nil
}

func (m *Memory) Close() {}
