package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MrCodeEU/FaceGate/internal/access"
)

// PostgresSink mirrors events into a central database shared by several doors
type PostgresSink struct {
	mu     sync.Mutex
	conn   *pgx.Conn
	doorID string
}

// NewPostgresSink connects and ensures the schema exists
func NewPostgresSink(ctx context.Context, connString, doorID string) (*PostgresSink, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := initPostgresSchema(ctx, conn); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &PostgresSink{conn: conn, doorID: doorID}, nil
}

func initPostgresSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS access_events (
			id TEXT PRIMARY KEY,
			door_id TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			outcome TEXT NOT NULL,
			label TEXT,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			liveness_real BOOLEAN NOT NULL DEFAULT FALSE,
			liveness_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			action TEXT NOT NULL,
			actuation TEXT NOT NULL,
			door_state TEXT NOT NULL,
			region TEXT,
			error_message TEXT
		);
		CREATE INDEX IF NOT EXISTS access_events_door_time_idx ON access_events (door_id, occurred_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Record implements Sink. Replaying an event with a known id is a no-op.
func (s *PostgresSink) Record(ctx context.Context, ev access.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO access_events (id, door_id, occurred_at, outcome, label, confidence,
			liveness_real, liveness_score, action, actuation, door_state, region, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, s.doorID, ev.Timestamp, ev.Outcome.String(), ev.Identity.Label, ev.Identity.Confidence,
		ev.Liveness.Real, ev.Liveness.Score, ev.Action.String(), ev.Actuation.String(),
		ev.Door.String(), ev.Region.String(), ev.Error)
	if err != nil {
		return fmt.Errorf("failed to insert access event: %w", err)
	}
	return nil
}

// CountOutcome returns how many events this door recorded with the given outcome
func (s *PostgresSink) CountOutcome(ctx context.Context, outcome access.Outcome) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM access_events WHERE door_id = $1 AND outcome = $2`,
		s.doorID, outcome.String(),
	).Scan(&n)
	return n, err
}

// Close implements Sink
func (s *PostgresSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Close(ctx)
}
