// Package coggrag implements the CogGRAG Subgraph (spec §4.9): a
// coordinated multi-step reasoning wrapper that decomposes a question into a
// tree of sub-questions, gathers and refines evidence per leaf via the
// Retrieval Orchestrator, reasons bottom-up with citation-constrained LLM
// calls, and gates on an abstain threshold before an optional verify pass.
//
// It is grounded on original_source/apps/api/app/services/rag/core/cograg/
// nodes/reasoner.py (the only CogGRAG stage file present in the corpus): the
// evidence-formatting convention ([ref:...]/[path:...] markers, confidence
// computed from evidence quantity/quality/conflicts/substance, the abstain
// policy), generalized to the sibling stages (decompose, gather, refine,
// conflict-detection, verify) spec §4.9 names but that file doesn't cover.
package coggrag

import (
	"time"

	"legalrag/internal/ragcore"
)

// SubQuestion is one node of the decomposition tree.
type SubQuestion struct {
	NodeID     string        `json:"node_id"`
	ParentID   string        `json:"parent_id,omitempty"`
	Question   string        `json:"question"`
	Depth      int           `json:"depth"`
	Children   []SubQuestion `json:"children,omitempty"`
	IsLeaf     bool          `json:"is_leaf"`
	Complexity float64       `json:"complexity"`
}

// EvidenceItem is one piece of evidence gathered for a node, either a text
// chunk (citable as [ref:ChunkID]) or a graph path (citable as
// [path:ChunkID], the graph retriever's Chunk.ID doubling as the path UID).
type EvidenceItem struct {
	ChunkID      string  `json:"chunk_id"`
	Text         string  `json:"text"`
	SourceType   string  `json:"source_type"`
	Dataset      string  `json:"dataset"`
	Score        float64 `json:"score"`
	FromGraph    bool    `json:"from_graph"`
	ContentHash  string  `json:"content_hash"`
}

// NodeEvidence is the refined evidence set for one node, post-dedup.
type NodeEvidence struct {
	NodeID       string         `json:"node_id"`
	Items        []EvidenceItem `json:"items"`
	QualityScore float64        `json:"quality_score"`
}

// Conflict records a contradiction found during stage 4.
type Conflict struct {
	Type   string `json:"type"` // "intra_node" or "cross_node"
	NodeA  string `json:"node_a"`
	NodeB  string `json:"node_b,omitempty"`
	Detail string `json:"detail"`
}

// NodeAnswer is the bottom-up output for one node.
type NodeAnswer struct {
	NodeID       string   `json:"node_id"`
	Question     string   `json:"question"`
	Answer       string   `json:"answer"`
	Confidence   float64  `json:"confidence"`
	Citations    []string `json:"citations"`
	EvidenceRefs []string `json:"evidence_refs"`
	HasConflicts bool     `json:"has_conflicts"`
}

// MindMapNode is the canonical trace structure for this wrapper: the
// decomposition tree annotated with each node's evidence count and answer.
type MindMapNode struct {
	NodeID     string        `json:"node_id"`
	Question   string        `json:"question"`
	Answer     string        `json:"answer"`
	Confidence float64       `json:"confidence"`
	Evidence   int           `json:"evidence_count"`
	Children   []MindMapNode `json:"children,omitempty"`
}

// VerificationStatus is the stage-6 abstain gate's verdict.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusApproved VerificationStatus = "approved"
	StatusAbstain  VerificationStatus = "abstain"
	StatusVerified VerificationStatus = "verified"
)

// Result is reason()'s full output.
type Result struct {
	Answer             string              `json:"answer"`
	SubAnswers         []NodeAnswer        `json:"sub_answers"`
	MindMap            MindMapNode         `json:"mind_map"`
	Trace              *ragcore.Trace      `json:"-"`
	VerificationStatus VerificationStatus  `json:"verification_status"`
	Issues             []string            `json:"issues,omitempty"`
	RethinkAttempts    int                 `json:"rethink_attempts"`
}

// Options are the per-call knobs spec §4.9 names.
type Options struct {
	MaxDepth              int
	MaxChildren           int
	ComplexityThreshold   float64
	GraphEvidenceMaxHops  int
	GraphEvidenceLimit    int
	AbstainMode           bool
	AbstainThreshold      float64
	MaxRethinkAttempts    int
	LLMMaxConcurrency     int
	Enable                bool
	Scope                 ragcore.ScopeContext
	Datasets              []string

	// PriorConsultations feeds stage 3's memory-based penalty: refs that
	// appeared in a near-duplicate prior consultation are down-weighted
	// rather than dropped, mirroring reasoner.py's blocked_refs handling.
	PriorConsultations []PriorConsultation
}

// PriorConsultation is one remembered near-duplicate past question, used to
// penalize (not exclude) evidence refs it already leaned on, so repeated
// questions don't silently recycle the same citations as if they were fresh.
type PriorConsultation struct {
	Question      string
	Similarity    float64
	PenalizedRefs []string
}

// DefaultOptions mirrors the original system's defaults (PLANO_COGRAG.md's
// abstain policy, reasoner.py's abstain_threshold=0.3 default).
func DefaultOptions() Options {
	return Options{
		MaxDepth:             2,
		MaxChildren:          3,
		ComplexityThreshold:  0.35,
		GraphEvidenceMaxHops: 2,
		GraphEvidenceLimit:   8,
		AbstainMode:          true,
		AbstainThreshold:     0.3,
		MaxRethinkAttempts:   1,
		LLMMaxConcurrency:    4,
	}
}

// Config tunes the Engine's collaborators and stage timeouts.
type Config struct {
	DecomposeTimeout time.Duration
	ReasonTimeout    time.Duration
	VerifyTimeout    time.Duration
	MaxTokens        int
	Temperature      float64
}

// DefaultConfig returns sensible per-call LLM timeouts and token budgets.
func DefaultConfig() Config {
	return Config{
		DecomposeTimeout: 10 * time.Second,
		ReasonTimeout:    15 * time.Second,
		VerifyTimeout:    10 * time.Second,
		MaxTokens:        1024,
		Temperature:      0.3,
	}
}
