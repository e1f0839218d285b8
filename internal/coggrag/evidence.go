package coggrag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"legalrag/internal/budget"
	"legalrag/internal/orchestrator"
	"legalrag/internal/ragcore"
)

// RetrievalSearcher is the subset of *orchestrator.Orchestrator this package
// depends on, narrowed to an interface so tests can stub it without standing
// up every retriever the real orchestrator needs.
type RetrievalSearcher interface {
	Search(ctx context.Context, req orchestrator.Request, meter *budget.Meter) (*orchestrator.PipelineResult, error)
}

// Gatherer implements spec §4.9 stage 2: per-leaf evidence gathering via the
// Retrieval Orchestrator, optionally with graph evidence folded in.
type Gatherer struct {
	searcher RetrievalSearcher
}

// NewGatherer wraps searcher (normally the shared *orchestrator.Orchestrator).
func NewGatherer(searcher RetrievalSearcher) *Gatherer {
	return &Gatherer{searcher: searcher}
}

// contentHash derives a stable fingerprint for dedup across nodes; two
// chunks with identical text fused from different retrievers or different
// leaves collapse to the same hash.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}

// Gather runs one orchestrator search for leaf.Question and converts its
// results into EvidenceItems, tagging graph-sourced hits so stage 5 can cite
// them as [path:...] instead of [ref:...].
func (g *Gatherer) Gather(ctx context.Context, leaf SubQuestion, opts Options, meter *budget.Meter) (NodeEvidence, error) {
	if g.searcher == nil {
		return NodeEvidence{NodeID: leaf.NodeID}, nil
	}

	reqOpts := orchestrator.DefaultOptions()
	reqOpts.EnableGraphRetrieval = opts.GraphEvidenceMaxHops > 0
	req := orchestrator.Request{
		Query:   leaf.Question,
		TopK:    8,
		Sources: opts.Datasets,
		Scope:   opts.Scope,
		Options: reqOpts,
	}

	result, err := g.searcher.Search(ctx, req, meter)
	if err != nil {
		if ragcore.IsKind(err, ragcore.ErrNoResults) || ragcore.IsKind(err, ragcore.ErrNoSources) {
			return NodeEvidence{NodeID: leaf.NodeID}, nil
		}
		return NodeEvidence{}, err
	}
	if result == nil {
		return NodeEvidence{NodeID: leaf.NodeID}, nil
	}

	items := make([]EvidenceItem, 0, len(result.Results))
	graphCount := 0
	for _, r := range result.Results {
		fromGraph := isGraphSourced(r)
		if fromGraph {
			if graphCount >= opts.GraphEvidenceLimit && opts.GraphEvidenceLimit > 0 {
				continue
			}
			graphCount++
		}
		text := r.FullText
		if r.CompressedText != nil && *r.CompressedText != "" {
			text = *r.CompressedText
		}
		if text == "" {
			text = r.Chunk.Text
		}
		items = append(items, EvidenceItem{
			ChunkID:     r.Chunk.ID,
			Text:        text,
			SourceType:  string(r.Chunk.Source),
			Dataset:     r.Chunk.Dataset,
			Score:       r.FusedScore,
			FromGraph:   fromGraph,
			ContentHash: contentHash(text),
		})
	}

	return NodeEvidence{NodeID: leaf.NodeID, Items: items}, nil
}

func isGraphSourced(r ragcore.RetrievalResult) bool {
	for _, name := range r.Retrievers {
		if name == ragcore.RetrieverGraph {
			return true
		}
	}
	return false
}

// Refine implements spec §4.9 stage 3: merge duplicates across every node's
// evidence by content hash (nodes are visited in sorted ID order and the first
// occurrence wins the canonical slot, same convention as fusion's
// retriever-set union), compute a quality score per
// node, and down-weight refs a near-duplicate prior consultation already
// leaned on rather than dropping them outright.
func Refine(byNode map[string]NodeEvidence, prior []PriorConsultation) map[string]NodeEvidence {
	penalized := penalizedRefs(prior)
	seenHash := make(map[string]bool)
	out := make(map[string]NodeEvidence, len(byNode))

	nodeIDs := make([]string, 0, len(byNode))
	for nodeID := range byNode {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	for _, nodeID := range nodeIDs {
		ev := byNode[nodeID]
		deduped := make([]EvidenceItem, 0, len(ev.Items))
		for _, item := range ev.Items {
			if seenHash[item.ContentHash] {
				continue
			}
			seenHash[item.ContentHash] = true
			if penalized[item.ChunkID] {
				item.Score *= 0.5
			}
			deduped = append(deduped, item)
		}
		out[nodeID] = NodeEvidence{
			NodeID:       nodeID,
			Items:        deduped,
			QualityScore: qualityScore(deduped),
		}
	}
	return out
}

func penalizedRefs(prior []PriorConsultation) map[string]bool {
	out := make(map[string]bool)
	for _, p := range prior {
		if p.Similarity < 0.85 {
			continue
		}
		for _, ref := range p.PenalizedRefs {
			out[ref] = true
		}
	}
	return out
}

// qualityScore averages retained evidence scores with a small bonus for
// having enough items to triangulate an answer, matching reasoner.py's
// "quality_score" factor feeding _compute_answer_confidence.
func qualityScore(items []EvidenceItem) float64 {
	if len(items) == 0 {
		return 0
	}
	sum := 0.0
	for _, it := range items {
		sum += it.Score
	}
	avg := sum / float64(len(items))
	if avg > 1 {
		avg = 1
	}
	if avg < 0 {
		avg = 0
	}
	bonus := 0.0
	if len(items) >= 5 {
		bonus = 0.1
	} else if len(items) >= 2 {
		bonus = 0.05
	}
	score := avg + bonus
	if score > 1 {
		score = 1
	}
	return score
}
