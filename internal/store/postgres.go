package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	phase      TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	brief      TEXT NOT NULL,
	outputs    JSONB NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres persists session state through a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

// NewPostgres connects, pings, and ensures the sessions table exists.
func NewPostgres(ctx context.Context, connStr string, logger *zap.SugaredLogger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sessionsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure sessions table: %w", err)
	}
	logger.Info("Connected to PostgreSQL")
	return &Postgres{pool: pool, logger: logger}, nil
}

func (p *Postgres) Save(ctx context.Context, state *SessionState) error {
	outputs, err := json.Marshal(state.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO sessions (id, status, phase, confidence, brief, outputs, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			phase = EXCLUDED.phase,
			confidence = EXCLUDED.confidence,
			outputs = EXCLUDED.outputs,
			updated_at = now()`,
		state.ID, state.Status, state.Phase, state.Confidence, state.Brief, outputs,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", state.ID, err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, sessionID string) (*SessionState, error) {
	var state SessionState
	var outputs []byte
	err := p.pool.QueryRow(ctx, `
		SELECT id, status, phase, confidence, brief, outputs
		FROM sessions WHERE id = $1`, sessionID,
	).Scan(&state.ID, &state.Status, &state.Phase, &state.Confidence, &state.Brief, &outputs)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if err := json.Unmarshal(outputs, &state.Outputs); err != nil {
		return nil, fmt.Errorf("decode outputs for %s: %w", sessionID, err)
	}
	return &state, nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
