// Package vectorstore implements the dense (and optional sparse) Vector
// Retriever (spec §4.3): one Qdrant collection per dataset, visibility
// pushed into the Qdrant filter itself, bounded concurrency across
// per-dataset queries, and support for searching with more than one query
// vector (HyDE, multi-query) and fusing the per-vector hits before they
// leave the store.
package vectorstore

import (
	"context"
	"fmt"
	"time"

	qdrantadapter "legalrag/internal/adapters/vectordb/qdrant"
	"legalrag/internal/ragcore"

	extqdrant "github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// CollectionNamer maps a dataset name to the Qdrant collection backing it,
// so ingestion and retrieval agree on layout without a shared constant.
type CollectionNamer func(dataset string) string

// DefaultCollectionNamer prefixes the dataset with the module name, matching
// the teacher's CollectionName convention in internal/rag's Pipeline tests.
func DefaultCollectionNamer(dataset string) string { return "legalrag_" + dataset }

// Config configures the vector retriever.
type Config struct {
	Embedder        Embedder
	CollectionNamer CollectionNamer
	// MaxConcurrency bounds concurrent per-dataset Qdrant queries
	// (vector_query_max_concurrency in spec §4.3).
	MaxConcurrency int64
	Timeout        time.Duration
}

// DefaultConfig returns sensible defaults; the embedder must still be set.
func DefaultConfig(embedder Embedder) Config {
	return Config{
		Embedder:        embedder,
		CollectionNamer: DefaultCollectionNamer,
		MaxConcurrency:  4,
		Timeout:         5 * time.Second,
	}
}

// Retriever is the capability-interface implementation of spec §9's
// Retriever{Search, Name, Timeout} backed by Qdrant.
type Retriever struct {
	client *qdrantadapter.Client
	cfg    Config
	sem    *semaphore.Weighted
	logger *logrus.Logger
}

// NewRetriever builds a vector retriever over an already-connected Qdrant
// client.
func NewRetriever(client *qdrantadapter.Client, cfg Config, logger *logrus.Logger) *Retriever {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.CollectionNamer == nil {
		cfg.CollectionNamer = DefaultCollectionNamer
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	return &Retriever{
		client: client,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrency),
		logger: logger,
	}
}

// Name identifies this retriever in the trace and RRF's retriever set.
func (r *Retriever) Name() string { return string(ragcore.RetrieverVector) }

// Timeout returns the configured per-query deadline.
func (r *Retriever) Timeout() time.Duration { return r.cfg.Timeout }

// Search embeds query and runs it against every requested dataset's
// collection, with visibility pushed into the Qdrant filter.
func (r *Retriever) Search(ctx context.Context, query string, datasets []string, topK int, scope ragcore.ScopeContext) ([]ragcore.RetrievalResult, error) {
	vector, err := r.cfg.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}
	return r.SearchVectors(ctx, [][]float32{vector}, datasets, topK, scope)
}

// SearchVectors runs the search with one or more precomputed query vectors
// (e.g. HyDE's hypothetical-document vector plus the raw-query vector, or
// several multi-query rewrites), fusing per-vector hits per chunk by best
// score before returning — spec §4.3's HyDE/multi-query embedding-input
// handling lives here rather than being special-cased by callers.
func (r *Retriever) SearchVectors(ctx context.Context, vectors [][]float32, datasets []string, topK int, scope ragcore.ScopeContext) ([]ragcore.RetrievalResult, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("vectorstore: at least one query vector required")
	}
	if len(datasets) == 0 {
		return nil, fmt.Errorf("vectorstore: at least one dataset required")
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	filter := scopeFilter(scope)

	merged := make(map[string]vectorHit)

datasetLoop:
	for _, dataset := range datasets {
		collection := r.cfg.CollectionNamer(dataset)
		for _, vec := range vectors {
			if err := r.sem.Acquire(searchCtx, 1); err != nil {
				r.logger.WithField("dataset", dataset).Warn("vector search deadline exceeded, returning partial results")
				break datasetLoop
			}
			points, err := r.client.SearchRaw(searchCtx, collection, vec, topK, filter)
			r.sem.Release(1)
			if err != nil {
				r.logger.WithError(err).WithField("collection", collection).Warn("vector search failed for dataset")
				continue
			}
			for _, p := range points {
				chunk := chunkFromPayload(p, dataset)
				score := float64(p.Score)
				if existing, ok := merged[chunk.ID]; !ok || score > existing.score {
					merged[chunk.ID] = vectorHit{chunk: chunk, score: score}
				}
			}
		}
	}

	ordered := make([]vectorHit, 0, len(merged))
	for _, h := range merged {
		ordered = append(ordered, h)
	}
	sortHits(ordered)
	if topK > 0 && len(ordered) > topK {
		ordered = ordered[:topK]
	}

	results := make([]ragcore.RetrievalResult, 0, len(ordered))
	for _, h := range ordered {
		results = append(results, ragcore.RetrievalResult{
			Chunk:             h.chunk,
			PerRetrieverScore: map[ragcore.RetrieverName]float64{ragcore.RetrieverVector: h.score},
			Retrievers:        []ragcore.RetrieverName{ragcore.RetrieverVector},
			FullText:          h.chunk.Text,
			Provenance:        []string{"vector"},
		})
	}
	return results, nil
}

type vectorHit struct {
	chunk ragcore.Chunk
	score float64
}

func sortHits(hits []vectorHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0; j-- {
			if hits[j].score > hits[j-1].score ||
				(hits[j].score == hits[j-1].score && hits[j].chunk.ID < hits[j-1].chunk.ID) {
				hits[j], hits[j-1] = hits[j-1], hits[j]
			} else {
				break
			}
		}
	}
}

func chunkFromPayload(p qdrantadapter.ScoredPoint, dataset string) ragcore.Chunk {
	get := func(key string) string {
		if v, ok := p.Payload[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getBool := func(key string) bool {
		if v, ok := p.Payload[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	return ragcore.Chunk{
		ID:      p.ID,
		DocID:   get("doc_id"),
		Source:  ragcore.SourceType(get("source")),
		Dataset: dataset,
		Text:    get("text"),
		Metadata: ragcore.ChunkMetadata{
			Title:    get("title"),
			Citation: get("citation"),
		},
		Visibility: ragcore.Visibility{
			Tenant:  get("tenant"),
			CaseID:  get("case_id"),
			GroupID: get("group_id"),
			Shared:  getBool("shared"),
			Sigilo:  getBool("sigilo"),
		},
	}
}

// scopeFilter builds a Qdrant filter approximating ragcore.ScopeContext.Admits:
// never return sigilo chunks, and require either a tenant match or a shared
// chunk, widened with case/group matches when those scopes are enabled.
func scopeFilter(scope ragcore.ScopeContext) *extqdrant.Filter {
	should := []*extqdrant.Condition{
		extqdrant.NewMatch("tenant", scope.Tenant),
	}
	if scope.EnableGlobal {
		should = append(should, extqdrant.NewMatchBool("shared", true))
	}
	if scope.EnableLocal && scope.CaseID != "" {
		should = append(should, extqdrant.NewMatch("case_id", scope.CaseID))
	}
	for _, g := range scope.GroupIDs {
		if scope.EnableGroup {
			should = append(should, extqdrant.NewMatch("group_id", g))
		}
	}
	return &extqdrant.Filter{
		Should:  should,
		MustNot: []*extqdrant.Condition{extqdrant.NewMatchBool("sigilo", true)},
	}
}
