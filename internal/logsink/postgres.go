package logsink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertRecord = `
	INSERT INTO invocation_records (id, function, runtime, handler, trace_id, duration_ms, success, error_message, exit_code, input_size, output_size, input, output, stderr, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (id) DO NOTHING
`

// PostgresSink writes records to the invocation_records table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to dsn and creates the table when missing.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresSink{pool: pool}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS invocation_records (
			id TEXT PRIMARY KEY,
			function TEXT NOT NULL,
			runtime TEXT NOT NULL,
			handler TEXT NOT NULL,
			trace_id TEXT,
			duration_ms BIGINT NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT,
			exit_code INTEGER NOT NULL,
			input_size INTEGER NOT NULL,
			output_size INTEGER NOT NULL,
			input JSONB,
			output JSONB,
			stderr TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invocation_records_function ON invocation_records(function, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func recordArgs(rec *Record) []any {
	return []any{
		rec.ID, rec.Function, rec.Runtime, rec.Handler, rec.TraceID, rec.DurationMs,
		rec.Success, rec.ErrorMessage, rec.ExitCode, rec.InputSize, rec.OutputSize,
		jsonbArg(rec.Input), jsonbArg(rec.Output), rec.Stderr, rec.CreatedAt,
	}
}

// jsonbArg maps an empty document to SQL NULL.
func jsonbArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (s *PostgresSink) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("invocation record id is required")
	}
	prepare(rec)
	if _, err := s.pool.Exec(ctx, insertRecord, recordArgs(rec)...); err != nil {
		return fmt.Errorf("save invocation record: %w", err)
	}
	return nil
}

func (s *PostgresSink) SaveBatch(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("invocation record id is required")
		}
		prepare(rec)
		batch.Queue(insertRecord, recordArgs(rec)...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range recs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("save invocation records: %w", err)
		}
	}
	return nil
}

// CountByFunction returns how many records are stored for function.
func (s *PostgresSink) CountByFunction(ctx context.Context, function string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invocation_records WHERE function = $1`, function).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count invocation records: %w", err)
	}
	return n, nil
}

func (s *PostgresSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
