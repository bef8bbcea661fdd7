package calllog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists completed calls in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_log (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			template_name TEXT NOT NULL,
			intent TEXT NOT NULL,
			caller_type TEXT NOT NULL,
			edge_case TEXT NOT NULL,
			branch TEXT NOT NULL DEFAULT '',
			npi TEXT NOT NULL DEFAULT '',
			member_id TEXT NOT NULL DEFAULT '',
			confidence INTEGER NOT NULL,
			escalated BOOLEAN NOT NULL,
			escalation_reason TEXT NOT NULL DEFAULT '',
			cost_avoided DOUBLE PRECISION NOT NULL DEFAULT 0,
			minutes_saved INTEGER NOT NULL DEFAULT 0,
			tts_fallbacks INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			transcript JSONB NOT NULL DEFAULT '[]'::jsonb,
			phi_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_call_log_created ON call_log (created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_call_log_session ON call_log (session_id);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const recordColumns = `id, session_id, template_name, intent, caller_type, edge_case, branch, npi, member_id,
	confidence, escalated, escalation_reason, cost_avoided, minutes_saved, tts_fallbacks, duration_ms,
	transcript, phi_redacted, created_at`

func (s *PostgresStore) Save(ctx context.Context, record Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Transcript == nil {
		record.Transcript = []Line{}
	}
	transcript, err := json.Marshal(record.Transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO call_log (`+recordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		record.ID,
		record.SessionID,
		record.TemplateName,
		record.Intent,
		record.CallerType,
		record.EdgeCase,
		record.Branch,
		record.NPI,
		record.MemberID,
		record.Confidence,
		record.Escalated,
		record.EscalationReason,
		record.CostAvoided,
		record.MinutesSaved,
		record.TTSFallbacks,
		record.DurationMS,
		transcript,
		record.PHIRedacted,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save call record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM call_log WHERE id=$1 OR session_id=$1 ORDER BY created_at DESC LIMIT 1`,
		id,
	)
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get call record: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM call_log ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent calls: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}
	return items, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r          Record
		transcript []byte
	)
	err := row.Scan(
		&r.ID, &r.SessionID, &r.TemplateName, &r.Intent, &r.CallerType, &r.EdgeCase, &r.Branch, &r.NPI, &r.MemberID,
		&r.Confidence, &r.Escalated, &r.EscalationReason, &r.CostAvoided, &r.MinutesSaved, &r.TTSFallbacks, &r.DurationMS,
		&transcript, &r.PHIRedacted, &r.CreatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &r.Transcript); err != nil {
			return Record{}, fmt.Errorf("decode transcript: %w", err)
		}
	}
	return r, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
