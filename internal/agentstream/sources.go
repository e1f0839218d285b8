package agentstream

import "sort"

// sourceTypeBoost weights a source's re-rank score by where it came from;
// internal RAG chunk evidence outranks a generic web research provider,
// since it has already passed this system's own visibility and fusion
// pipeline.
var sourceTypeBoost = map[string]float64{
	"rag_global":  1.15,
	"rag_local":   1.25,
	"deep_research": 0.9,
}

// DedupeAndRank merges sources across every tool call in a single agentic
// iteration, de-duplicating by (provider, chunk_id/url) and boosting by
// source type, highest score first, ties broken by provider name for
// determinism.
func DedupeAndRank(sources []Source) []Source {
	type key struct{ provider, id string }
	seen := make(map[key]int)
	out := make([]Source, 0, len(sources))

	for _, s := range sources {
		id := s.ChunkID
		if id == "" {
			id = s.URL
		}
		k := key{s.Provider, id}
		boosted := s
		if boost, ok := sourceTypeBoost[s.Provider]; ok {
			boosted.Score *= boost
		}
		if idx, exists := seen[k]; exists {
			if boosted.Score > out[idx].Score {
				out[idx] = boosted
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, boosted)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Provider < out[j].Provider
	})
	return out
}
