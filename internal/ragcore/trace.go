package ragcore

import (
	"sync"
	"time"
)

// StageEvent is one append-only record of a pipeline stage's execution.
type StageEvent struct {
	Stage     string        `json:"stage"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Input     string        `json:"input,omitempty"`
	Output    string        `json:"output,omitempty"`
	Err       string        `json:"error,omitempty"`
	TimedOut  bool          `json:"timed_out,omitempty"`
}

// CorrectiveAction records one CRAG retry loop.
type CorrectiveAction struct {
	Strategy   string        `json:"strategy"`
	Duration   time.Duration `json:"duration"`
	ResultCount int          `json:"result_count"`
	BestScore  float64       `json:"best_score"`
	AvgTop3    float64       `json:"avg_top3"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Err        string        `json:"error,omitempty"`
}

// RewriteRecord captures a conversational-rewrite of the latest turn into a
// standalone search query.
type RewriteRecord struct {
	Original   string `json:"original"`
	Rewritten  string `json:"rewritten"`
	UsedHistory bool  `json:"used_history"`
}

// AttributionEntry is the source-attribution record for one surfaced result.
type AttributionEntry struct {
	ChunkID       string        `json:"chunk_id"`
	Score         float64       `json:"score"`
	Dataset       string        `json:"dataset"`
	Rank          int           `json:"rank"`
	EvidenceLevel EvidenceLevel `json:"evidence_level"`
}

// Trace is the per-request, append-only pipeline trace. Every result
// surfaced to the caller has exactly one AttributionEntry.
type Trace struct {
	RequestID string `json:"request_id"`

	mu                sync.Mutex
	queryOriginal     string
	queryRewritten    string
	rewrites          []RewriteRecord
	events            []StageEvent
	correctiveActions []CorrectiveAction
	attribution       []AttributionEntry
	evidenceLevel     EvidenceLevel
}

// NewTrace creates an empty trace for requestID with the query as received.
func NewTrace(requestID, query string) *Trace {
	return &Trace{RequestID: requestID, queryOriginal: query, queryRewritten: query}
}

// RecordStage appends a stage event. Safe for concurrent stages.
func (t *Trace) RecordStage(e StageEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

// RecordRewrite records a query-rewrite record and updates the working
// rewritten query.
func (t *Trace) RecordRewrite(r RewriteRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rewrites = append(t.rewrites, r)
	t.queryRewritten = r.Rewritten
}

// RecordCorrectiveAction appends a CRAG corrective action.
func (t *Trace) RecordCorrectiveAction(a CorrectiveAction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.correctiveActions = append(t.correctiveActions, a)
}

// SetAttribution replaces the attribution list for the final result set.
func (t *Trace) SetAttribution(entries []AttributionEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attribution = entries
}

// SetEvidenceLevel records the final evidence-level classification.
func (t *Trace) SetEvidenceLevel(level EvidenceLevel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evidenceLevel = level
}

// Events returns a copy of the recorded stage events.
func (t *Trace) Events() []StageEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StageEvent, len(t.events))
	copy(out, t.events)
	return out
}

// CorrectiveActions returns a copy of the recorded CRAG corrective actions.
func (t *Trace) CorrectiveActions() []CorrectiveAction {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]CorrectiveAction, len(t.correctiveActions))
	copy(out, t.correctiveActions)
	return out
}

// Attribution returns a copy of the current source-attribution list.
func (t *Trace) Attribution() []AttributionEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]AttributionEntry, len(t.attribution))
	copy(out, t.attribution)
	return out
}

// EvidenceLevel returns the final evidence-level classification.
func (t *Trace) EvidenceLevel() EvidenceLevel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evidenceLevel
}

// QueryForms returns the query as received and the latest rewritten form.
func (t *Trace) QueryForms() (original, rewritten string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queryOriginal, t.queryRewritten
}

// UsedStrategy reports whether a CRAG strategy name already ran this request.
func (t *Trace) UsedStrategy(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.correctiveActions {
		if a.Strategy == name {
			return true
		}
	}
	return false
}
