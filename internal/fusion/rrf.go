// Package fusion implements Reciprocal Rank Fusion and the reranking stage
// (spec §4.5): fused_score(chunk) = sum_r w_r * 1/(k + rank_r(chunk)), ties
// broken deterministically on chunk ID, plus pluggable rerankers and the
// legal-domain score boost.
package fusion

import (
	"sort"

	"legalrag/internal/ragcore"
)

// Method is the fusion strategy, mirroring the teacher's
// FusionRRF/FusionWeighted/FusionMax enum.
type Method string

const (
	MethodRRF      Method = "rrf"
	MethodWeighted Method = "weighted"
	MethodMax      Method = "max"
)

// Config controls fusion behavior.
type Config struct {
	Method Method
	// RRFK is RRF's rank-damping constant (k in 1/(k+rank)); the teacher
	// defaults this to 60.
	RRFK int
	// Weights is per-retriever weight w_r; defaults to 1.0 when a retriever
	// is absent from the map.
	Weights map[ragcore.RetrieverName]float64
}

// DefaultConfig mirrors the teacher's DefaultHybridConfig RRF defaults.
func DefaultConfig() Config {
	return Config{
		Method: MethodRRF,
		RRFK:   60,
		Weights: map[ragcore.RetrieverName]float64{
			ragcore.RetrieverLexical: 1.0,
			ragcore.RetrieverVector:  1.0,
			ragcore.RetrieverGraph:   1.0,
		},
	}
}

func (c Config) weight(name ragcore.RetrieverName) float64 {
	if w, ok := c.Weights[name]; ok {
		return w
	}
	return 1.0
}

// Fuse merges one ordered result slice per retriever into a single ordered
// slice of ragcore.RetrievalResult, deduplicated by chunk ID, with
// PerRetrieverScore and Retrievers accumulated from every contributing
// retriever and FusedScore set per cfg.Method.
func Fuse(perRetriever map[ragcore.RetrieverName][]ragcore.RetrievalResult, cfg Config) []ragcore.RetrievalResult {
	merged := make(map[string]*ragcore.RetrievalResult)
	order := make([]string, 0)
	// rank[name][chunkID] = 1-based rank within that retriever's result list.
	rank := make(map[ragcore.RetrieverName]map[string]int, len(perRetriever))

	names := make([]ragcore.RetrieverName, 0, len(perRetriever))
	for name := range perRetriever {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	// Iterating retrievers in a stable, name-sorted order (rather than Go's
	// randomized map order) makes which retriever's copy becomes canonical
	// for a given chunk ID deterministic across runs.
	for _, name := range names {
		results := perRetriever[name]
		rank[name] = make(map[string]int, len(results))
		for i, res := range results {
			rank[name][res.Chunk.ID] = i + 1

			existing, ok := merged[res.Chunk.ID]
			if !ok {
				copyRes := res
				copyRes.PerRetrieverScore = map[ragcore.RetrieverName]float64{}
				copyRes.Retrievers = nil
				merged[res.Chunk.ID] = &copyRes
				order = append(order, res.Chunk.ID)
				existing = merged[res.Chunk.ID]
			}
			if score, ok := res.PerRetrieverScore[name]; ok {
				existing.PerRetrieverScore[name] = score
			}
			existing.Retrievers = appendRetrieverOnce(existing.Retrievers, name)
		}
	}

	out := make([]ragcore.RetrievalResult, 0, len(order))
	for _, id := range order {
		r := merged[id]
		r.FusedScore = fusedScore(id, r.PerRetrieverScore, rank, cfg)
		out = append(out, *r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	return out
}

func fusedScore(chunkID string, perRetrieverScore map[ragcore.RetrieverName]float64, rank map[ragcore.RetrieverName]map[string]int, cfg Config) float64 {
	switch cfg.Method {
	case MethodWeighted:
		var sum float64
		for name, score := range perRetrieverScore {
			sum += cfg.weight(name) * score
		}
		return sum
	case MethodMax:
		var max float64
		for name, score := range perRetrieverScore {
			weighted := cfg.weight(name) * score
			if weighted > max {
				max = weighted
			}
		}
		return max
	default: // MethodRRF
		k := cfg.RRFK
		if k <= 0 {
			k = 60
		}
		var sum float64
		for name, byChunk := range rank {
			r, ok := byChunk[chunkID]
			if !ok {
				continue
			}
			sum += cfg.weight(name) * (1.0 / float64(k+r))
		}
		return sum
	}
}

func appendRetrieverOnce(list []ragcore.RetrieverName, name ragcore.RetrieverName) []ragcore.RetrieverName {
	for _, n := range list {
		if n == name {
			return list
		}
	}
	return append(list, name)
}
