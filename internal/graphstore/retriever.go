package graphstore

import (
	"context"
	"fmt"
	"time"

	"legalrag/internal/ragcore"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config configures the graph retriever's traversal bounds.
type Config struct {
	// MaxHops bounds the BFS/shortest-path expansion (graph_max_hops).
	MaxHops int
	// MaxNeighbors caps the fan-out explored from any single seed entity.
	MaxNeighbors int
	Timeout      time.Duration
}

// DefaultConfig mirrors the teacher's conservative defaults for bounded,
// latency-sensitive graph traversal.
func DefaultConfig() Config {
	return Config{MaxHops: 2, MaxNeighbors: 25, Timeout: 3 * time.Second}
}

// Retriever implements spec §9's Retriever{Search, Name, Timeout} backed by
// the graph store: seed entities are matched from the query's mentioned
// names, then a bounded traversal gathers verified-layer context, each hop
// addressable as a path_uid string for the Pipeline Trace.
type Retriever struct {
	store *Store
	cfg   Config
}

// NewRetriever builds a graph retriever over an already-connected Store.
func NewRetriever(store *Store, cfg Config) *Retriever {
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = 2
	}
	if cfg.MaxNeighbors <= 0 {
		cfg.MaxNeighbors = 25
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	return &Retriever{store: store, cfg: cfg}
}

func (r *Retriever) Name() string        { return string(ragcore.RetrieverGraph) }
func (r *Retriever) Timeout() time.Duration { return r.cfg.Timeout }

// Search matches query against entity names/aliases, traverses up to
// MaxHops from each match over the verified edge layer (and the candidate
// layer when scope.AllowCandidateEdges is set), and returns the chunks
// attached to every entity reached via HAS_CHUNK/MENTIONS, each tagged with
// a path_uid provenance string.
func (r *Retriever) Search(ctx context.Context, query string, datasets []string, topK int, scope ragcore.ScopeContext) ([]ragcore.RetrievalResult, error) {
	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	layers := []string{"verified"}
	if scope.AllowCandidateEdges {
		layers = append(layers, "candidate")
	}

	cypher := `
		MATCH (seed:Entity)
		WHERE toLower(seed.name) CONTAINS toLower($query)
		  AND (seed.tenant = $tenant OR seed.shared = true)
		  AND coalesce(seed.sigilo, false) = false
		WITH seed LIMIT $maxNeighbors
		MATCH path = (seed)-[r*1..` + fmt.Sprintf("%d", r.cfg.MaxHops) + `]-(related:Entity)
		WHERE all(rel IN relationships(path) WHERE rel.layer IN $layers)
		MATCH (related)<-[:MENTIONS]-(c:Chunk)
		WHERE (c.tenant = $tenant OR c.shared = true) AND coalesce(c.sigilo, false) = false
		RETURN DISTINCT c.id AS chunkId, c.docId AS docId, c.source AS source,
		       c.dataset AS dataset, c.text AS text, c.tenant AS tenant,
		       c.shared AS shared, c.sigilo AS sigilo,
		       seed.id AS seedId, related.id AS relatedId, length(path) AS hops
		LIMIT $limit
	`
	params := map[string]any{
		"query":        query,
		"tenant":       scope.Tenant,
		"layers":       layers,
		"maxNeighbors": r.cfg.MaxNeighbors,
		"limit":        topK,
	}

	records, err := r.store.run(searchCtx, cypher, params)
	if err != nil {
		return nil, err
	}

	results := make([]ragcore.RetrievalResult, 0, len(records))
	for _, rec := range records {
		chunk := chunkFromRecord(rec, datasets)
		pathUID := pathUIDFromRecord(rec)
		score := hopScore(rec)
		results = append(results, ragcore.RetrievalResult{
			Chunk:             chunk,
			PerRetrieverScore: map[ragcore.RetrieverName]float64{ragcore.RetrieverGraph: score},
			Retrievers:        []ragcore.RetrieverName{ragcore.RetrieverGraph},
			FullText:          chunk.Text,
			Provenance:        []string{pathUID},
		})
	}
	return results, nil
}

func getString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func getBool(rec *neo4j.Record, key string) bool {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func chunkFromRecord(rec *neo4j.Record, datasets []string) ragcore.Chunk {
	dataset := getString(rec, "dataset")
	return ragcore.Chunk{
		ID:      getString(rec, "chunkId"),
		DocID:   getString(rec, "docId"),
		Source:  ragcore.SourceType(getString(rec, "source")),
		Dataset: dataset,
		Text:    getString(rec, "text"),
		Visibility: ragcore.Visibility{
			Tenant: getString(rec, "tenant"),
			Shared: getBool(rec, "shared"),
			Sigilo: getBool(rec, "sigilo"),
		},
	}
}

// pathUIDFromRecord builds a deterministic, replayable identifier for the
// traversal that produced this chunk, so the Pipeline Trace can cite the
// exact path rather than just "the graph retriever".
func pathUIDFromRecord(rec *neo4j.Record) string {
	seed := getString(rec, "seedId")
	related := getString(rec, "relatedId")
	return fmt.Sprintf("graph:%s->%s", seed, related)
}

// hopScore decays with traversal distance: direct neighbors score highest,
// bounding the graph retriever's influence on fusion as hops grow.
func hopScore(rec *neo4j.Record) float64 {
	v, ok := rec.Get("hops")
	if !ok {
		return 0.5
	}
	hops, ok := v.(int64)
	if !ok || hops <= 0 {
		return 0.5
	}
	return 1.0 / float64(hops+1)
}
