package lexical

import (
	"context"
	"sync"
	"time"

	"legalrag/internal/ragcore"

	"github.com/sirupsen/logrus"
)

// Retriever implements the capability interface from spec §9:
// Retriever{ Search, Name, Timeout }. It maps a dataset selector from the
// closed source-type set onto a named BM25 index, never falling back to an
// unnamed catch-all index.
type Retriever struct {
	mu      sync.RWMutex
	indices map[string]*EnhancedBM25Index
	timeout time.Duration
	logger  *logrus.Logger
}

// NewRetriever creates an empty lexical retriever with per-dataset deadline
// lexical_timeout_seconds.
func NewRetriever(timeout time.Duration, logger *logrus.Logger) *Retriever {
	if logger == nil {
		logger = logrus.New()
	}
	return &Retriever{indices: make(map[string]*EnhancedBM25Index), timeout: timeout, logger: logger}
}

// Name identifies this retriever in the trace and in RRF's retriever-set.
func (r *Retriever) Name() string { return string(ragcore.RetrieverLexical) }

// Timeout returns the configured per-dataset deadline.
func (r *Retriever) Timeout() time.Duration { return r.timeout }

// Index returns (creating if absent) the named dataset's BM25 index, so
// ingestion-side callers can populate it directly in tests and fakes.
func (r *Retriever) Index(dataset string) *EnhancedBM25Index {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.indices[dataset]
	if !ok {
		idx = NewEnhancedBM25Index()
		r.indices[dataset] = idx
	}
	return idx
}

// IndexChunk adds c to its dataset's index.
func (r *Retriever) IndexChunk(c ragcore.Chunk) {
	r.Index(c.Dataset).AddChunk(c)
}

// Search runs the query against every requested dataset (or every known
// dataset if datasets is empty), merging per-dataset matches and applying
// the scope predicate inside the scoring pass itself.
func (r *Retriever) Search(ctx context.Context, query string, datasets []string, topK int, scope ragcore.ScopeContext) ([]ragcore.RetrievalResult, error) {
	deadline := time.Now().Add(r.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	searchCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	r.mu.RLock()
	targets := datasets
	if len(targets) == 0 {
		for ds := range r.indices {
			targets = append(targets, ds)
		}
	}
	indices := make(map[string]*EnhancedBM25Index, len(targets))
	for _, ds := range targets {
		if idx, ok := r.indices[ds]; ok {
			indices[ds] = idx
		}
	}
	r.mu.RUnlock()

	admit := scope.Admits

	type scored struct {
		match   BM25Match
		dataset string
	}
	var all []scored
	for ds, idx := range indices {
		select {
		case <-searchCtx.Done():
			r.logger.WithField("dataset", ds).Warn("lexical search deadline exceeded, returning partial results")
		default:
			for _, m := range idx.SearchScoped(query, topK, admit) {
				all = append(all, scored{match: m, dataset: ds})
			}
		}
	}
	sortScored(all)
	if topK > 0 && len(all) > topK {
		all = all[:topK]
	}

	results := make([]ragcore.RetrievalResult, 0, len(all))
	for _, s := range all {
		results = append(results, ragcore.RetrievalResult{
			Chunk:             s.match.Document,
			PerRetrieverScore: map[ragcore.RetrieverName]float64{ragcore.RetrieverLexical: s.match.Score},
			Retrievers:        []ragcore.RetrieverName{ragcore.RetrieverLexical},
			FullText:          s.match.Document.Text,
			Provenance:        []string{"lexical"},
		})
	}
	return results, nil
}

func sortScored(all []struct {
	match   BM25Match
	dataset string
}) {
	for i := 1; i < len(all); i++ {
		for j := i; j > 0; j-- {
			if all[j].match.Score > all[j-1].match.Score {
				all[j], all[j-1] = all[j-1], all[j]
			} else {
				break
			}
		}
	}
}

// TopCitationScore returns the best BM25 score across every indexed dataset
// for the trial lexical query used by enable_lexical_first_gating (spec
// §4.1 step 3), without allocating a full RetrievalResult slice.
func (r *Retriever) TopCitationScore(query string, scope ragcore.ScopeContext) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best := 0.0
	for _, idx := range r.indices {
		for _, m := range idx.SearchScoped(query, 1, scope.Admits) {
			if m.Score > best {
				best = m.Score
			}
		}
	}
	return best
}
