// Package agentstream implements the Agentic Orchestrator (spec §4.10): a
// streaming typed-event loop over a tool surface (RAG search, deep-research
// providers, citation verification, study-section drafting) with source
// de-duplication and re-ranking.
//
// It adapts, rather than reimplements, the kept graph-based workflow engine
// in internal/agentic/workflow.go: the same Workflow/Node/NodeHandler/
// WorkflowState/Tool/ToolCall/ToolHandler types drive this package's
// iterate→tool→merge→study node graph, with an emit callback captured by
// every node handler so they can emit events as they run instead of only
// returning a final result.
package agentstream

import "time"

// EventKind is the closed set of typed events a stream can emit (spec
// §4.10's event list).
type EventKind string

const (
	EventIteration      EventKind = "agent_iteration"
	EventThinking       EventKind = "agent_thinking"
	EventToolCall       EventKind = "agent_tool_call"
	EventToolResult     EventKind = "agent_tool_result"
	EventProviderSource EventKind = "provider_source"
	EventAskUser        EventKind = "agent_ask_user"
	EventStudyToken     EventKind = "study_token"
	EventMergeDone      EventKind = "merge_done"
	EventStudyDone      EventKind = "study_done"
	EventError          EventKind = "error"
)

// Event is one item of the Stream output.
type Event struct {
	Kind      EventKind              `json:"kind"`
	RequestID string                 `json:"request_id"`
	Iteration int                    `json:"iteration,omitempty"`
	Text      string                 `json:"text,omitempty"`
	ToolName  string                 `json:"tool_name,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Err       string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Source is one de-duplicated, re-ranked provenance entry surfaced via
// EventProviderSource.
type Source struct {
	Provider string  `json:"provider"`
	ChunkID  string  `json:"chunk_id,omitempty"`
	URL      string  `json:"url,omitempty"`
	Title    string  `json:"title,omitempty"`
	Score    float64 `json:"score"`
}

func newEvent(kind EventKind, requestID string) Event {
	return Event{Kind: kind, RequestID: requestID, Timestamp: eventTime()}
}

// eventTime is the single call site for "now" in this package, kept
// indirected so tests can pin it if needed.
var eventTime = time.Now
