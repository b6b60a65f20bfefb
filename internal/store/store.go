// Package store persists session snapshots so operators can inspect finished
// or in-flight sessions out of band. The engine treats it as best-effort: a
// failed save is logged, never a workflow failure.
package store

import "context"

// SessionState is the durable view of a session.
type SessionState struct {
	ID         string                    `json:"id"`
	Status     string                    `json:"status"`
	Phase      string                    `json:"phase"`
	Confidence float64                   `json:"confidence"`
	Brief      string                    `json:"brief"`
	Outputs    map[string]map[string]any `json:"outputs"`
}

// Store saves and loads session state.
type Store interface {
	Save(ctx context.Context, state *SessionState) error
	Load(ctx context.Context, sessionID string) (*SessionState, error)
	Close()
}
