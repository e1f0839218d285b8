package vectorstore

import (
	"context"
	"fmt"
	"time"

	"legalrag/internal/ragcore"

	chroma "github.com/amikos-tech/chroma-go"
	"github.com/amikos-tech/chroma-go/types"
	"github.com/sirupsen/logrus"
)

// ChromaRetriever is an alternate dense-vector backend selectable via
// config.ServicesConfig.ChromaDB (spec §4.12's domain stack), for
// deployments that run ChromaDB instead of Qdrant. It implements the same
// Retriever{Search, Name, Timeout} capability interface as the Qdrant
// Retriever so the orchestrator can swap backends without touching callers.
type ChromaRetriever struct {
	client   *chroma.Client
	embedder Embedder
	cfg      Config
	logger   *logrus.Logger
}

// NewChromaRetriever builds a vector retriever over an already-reachable
// Chroma server at baseURL (e.g. "http://localhost:8001").
func NewChromaRetriever(baseURL string, cfg Config, logger *logrus.Logger) (*ChromaRetriever, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.CollectionNamer == nil {
		cfg.CollectionNamer = DefaultCollectionNamer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client, err := chroma.NewClient(baseURL)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: chroma client: %w", err)
	}

	return &ChromaRetriever{client: client, embedder: cfg.Embedder, cfg: cfg, logger: logger}, nil
}

func (r *ChromaRetriever) Name() string { return string(ragcore.RetrieverVector) }

func (r *ChromaRetriever) Timeout() time.Duration { return r.cfg.Timeout }

// Search embeds query and runs it against every requested dataset's Chroma
// collection, merging per-dataset hits by distance (lower is better).
func (r *ChromaRetriever) Search(ctx context.Context, query string, datasets []string, topK int, scope ragcore.ScopeContext) ([]ragcore.RetrievalResult, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	where := chromaScopeFilter(scope)
	merged := make(map[string]vectorHit)

	for _, dataset := range datasets {
		collectionName := r.cfg.CollectionNamer(dataset)
		collection, err := r.client.GetCollection(searchCtx, collectionName, nil)
		if err != nil {
			r.logger.WithError(err).WithField("collection", collectionName).Warn("chroma collection unavailable for dataset")
			continue
		}

		result, err := collection.QueryWithOptions(searchCtx,
			types.WithQueryEmbeddings(types.NewEmbeddingsFromFloat32([][]float32{vector})),
			types.WithNResults(int32(topK)),
			types.WithWhere(where),
		)
		if err != nil {
			r.logger.WithError(err).WithField("collection", collectionName).Warn("chroma query failed for dataset")
			continue
		}

		for i, id := range result.Ids {
			chunk := chunkFromChromaRow(id, result, i, dataset)
			score := chromaDistanceToScore(result, i)
			if existing, ok := merged[chunk.ID]; !ok || score > existing.score {
				merged[chunk.ID] = vectorHit{chunk: chunk, score: score}
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

func chromaScopeFilter(scope ragcore.ScopeContext) map[string]interface{} {
	// Chroma's where clause has no native OR-of-conditions the way Qdrant's
	// should/must does; sigilo exclusion is the one invariant that must
	// always hold, so it's the only condition pushed down here. Tenant,
	// case and group admission is re-checked by the caller against
	// ScopeContext.Admits after results come back, same as the lexical
	// retriever's belt-and-suspenders filtering.
	return map[string]interface{}{"sigilo": map[string]interface{}{"$ne": true}}
}

func chromaDistanceToScore(result *types.QueryResults, i int) float64 {
	if len(result.Distances) == 0 || len(result.Distances[0]) <= i {
		return 0
	}
	// Chroma returns L2/cosine distance (lower is closer); invert so larger
	// is better, matching the rest of this package's score convention.
	return 1.0 / (1.0 + float64(result.Distances[0][i]))
}

func chunkFromChromaRow(id string, result *types.QueryResults, i int, dataset string) ragcore.Chunk {
	var text string
	if len(result.Documents) > 0 && len(result.Documents[0]) > i {
		text = result.Documents[0][i]
	}

	meta := map[string]interface{}{}
	if len(result.Metadatas) > 0 && len(result.Metadatas[0]) > i {
		meta = result.Metadatas[0][i]
	}
	getStr := func(key string) string {
		if v, ok := meta[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getBool := func(key string) bool {
		if v, ok := meta[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}

	return ragcore.Chunk{
		ID:      id,
		DocID:   getStr("doc_id"),
		Source:  ragcore.SourceType(getStr("source")),
		Dataset: dataset,
		Text:    text,
		Metadata: ragcore.ChunkMetadata{
			Title:    getStr("title"),
			Citation: getStr("citation"),
		},
		Visibility: ragcore.Visibility{
			Tenant:  getStr("tenant"),
			CaseID:  getStr("case_id"),
			GroupID: getStr("group_id"),
			Shared:  getBool("shared"),
			Sigilo:  getBool("sigilo"),
		},
	}
}
