package tracing

import (
	"context"
	"time"

	"legalrag/internal/database"
	"legalrag/internal/ragcore"

	"github.com/sirupsen/logrus"
)

// PostgresSink persists one row per request into a trace_log table via the
// shared pgx pool (internal/database), grounded on the teacher's
// pgxpool-based query patterns (internal/database/query_optimizer.go).
type PostgresSink struct {
	db     database.DB
	logger *logrus.Logger
}

// NewPostgresSink wraps an already-connected database.DB.
func NewPostgresSink(db database.DB, logger *logrus.Logger) *PostgresSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &PostgresSink{db: db, logger: logger}
}

// CreateTableSQL is exposed so migration tooling can run it ahead of time;
// this package never issues DDL itself against a shared database.
const CreateTableSQL = `CREATE TABLE IF NOT EXISTS rag_trace_log (
	request_id TEXT PRIMARY KEY,
	recorded_at TIMESTAMPTZ NOT NULL,
	query_original TEXT NOT NULL,
	evidence_level TEXT NOT NULL,
	payload JSONB NOT NULL
)`

// Append inserts trace as one JSONB row, upserting on request_id so a retry
// after a soft failure doesn't duplicate the record.
func (s *PostgresSink) Append(ctx context.Context, trace *ragcore.Trace) error {
	rec := NewRecord(trace, time.Now())
	payload, err := MarshalJSONLine(rec)
	if err != nil {
		return err
	}
	// Drop the trailing newline MarshalJSONLine adds for the file-based
	// sinks; JSONB columns don't want it.
	payload = payload[:len(payload)-1]

	err = s.db.Exec(ctx,
		`INSERT INTO rag_trace_log (request_id, recorded_at, query_original, evidence_level, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (request_id) DO UPDATE SET payload = EXCLUDED.payload`,
		rec.RequestID, rec.RecordedAt, rec.QueryOriginal, string(rec.EvidenceLevel), payload,
	)
	if err != nil {
		s.logger.WithError(err).WithField("request_id", rec.RequestID).Warn("tracing: postgres sink append failed")
	}
	return err
}
