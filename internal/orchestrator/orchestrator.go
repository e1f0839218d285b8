// Package orchestrator implements the Retrieval Orchestrator (spec §4.1):
// the single search() entry point that fans out to the lexical, vector and
// graph retrievers, fuses and grades their results, runs the CRAG corrective
// loop, reranks, expands and compresses the winning chunks, and returns an
// ordered result list plus a full pipeline trace.
//
// It is grounded on original_source/apps/api/app/services/rag_pipeline.py's
// stage sequencing (RAGPipeline.search), restyled around this repository's
// already-built internal/lexical, internal/vectorstore, internal/graphstore,
// internal/fusion, internal/expansion, internal/crag and internal/chunking
// packages, fanned out with golang.org/x/sync/errgroup per spec §5.
package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"legalrag/internal/budget"
	"legalrag/internal/chunking"
	"legalrag/internal/crag"
	"legalrag/internal/expansion"
	"legalrag/internal/fusion"
	"legalrag/internal/ragcore"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Retriever is the capability interface every fan-out target (lexical,
// vector, graph) implements, matching spec §9's Retriever{Search, Name,
// Timeout} shape.
type Retriever interface {
	Name() string
	Timeout() time.Duration
	Search(ctx context.Context, query string, datasets []string, topK int, scope ragcore.ScopeContext) ([]ragcore.RetrievalResult, error)
}

// Options is the per-request toggle set from spec §4.1's options table.
type Options struct {
	EnableHyDE                 bool
	EnableMultiQuery           bool
	EnableCRAG                 bool
	EnableRerank               bool
	EnableCompression          bool
	EnableChunkExpansion       bool
	EnableGraphEnrich          bool
	EnableGraphRetrieval       bool
	EnableLexicalFirstGating   bool
	EnableContextualEmbeddings bool
	EnableCitationGrounding    bool
	DenseResearch              bool

	// History and Summary feed query rewrite (spec §4.6); History is
	// typically the flattened output of conversation.HistoryText.
	History string
	Summary string
}

// DefaultOptions mirrors RAGPipeline's default feature flags: everything
// that improves recall/precision on by default, graph retrieval off until a
// caller opts in (most requests have no graph-worthy entities to seed from).
func DefaultOptions() Options {
	return Options{
		EnableHyDE:               true,
		EnableMultiQuery:         true,
		EnableCRAG:               true,
		EnableRerank:             true,
		EnableCompression:        true,
		EnableChunkExpansion:     true,
		EnableGraphEnrich:        false,
		EnableGraphRetrieval:     false,
		EnableLexicalFirstGating: true,
		EnableCitationGrounding:  true,
	}
}

// Request is one search() call's full input.
type Request struct {
	Query   string
	TopK    int
	Sources []string // dataset subset; empty means every configured dataset
	Scope   ragcore.ScopeContext
	Options Options
}

// PipelineResult is search()'s output: the ordered result list, the full
// pipeline trace, the evidence-level classification and a compressed text
// bundle ready for prompt injection.
type PipelineResult struct {
	Results          []ragcore.RetrievalResult
	Trace            *ragcore.Trace
	EvidenceLevel    ragcore.EvidenceLevel
	CompressedBundle string
}

// Config tunes the orchestrator's stage behavior; zero values are replaced
// by DefaultConfig's defaults wherever the caller leaves them unset.
type Config struct {
	// Datasets is the full list of configured dataset names, used when
	// Request.Sources is empty.
	Datasets []string

	FetchK               int
	MinSourcesRequired    int
	StageTimeout          time.Duration
	OverallTimeout        time.Duration
	LexicalGateThreshold  float64
	CitationPattern       *regexp.Regexp
	GraphHops             int
	GraphMaxNodes         int

	Fusion      fusion.Config
	Expansion   chunking.ExpansionConfig
	Compression chunking.CompressionConfig
	Budget      budget.Limits
}

// DefaultConfig mirrors RAGPipelineConfig's from_env defaults.
func DefaultConfig() Config {
	return Config{
		FetchK:               40,
		MinSourcesRequired:    1,
		StageTimeout:          4 * time.Second,
		OverallTimeout:        20 * time.Second,
		LexicalGateThreshold: 0.75,
		CitationPattern:      regexp.MustCompile(`(?i)art\.?\s*\d+|súmula\s*\d+|processo\s*n[º°o]?\s*[\d.\-]+`),
		GraphHops:            2,
		GraphMaxNodes:        50,
		Fusion:               fusion.DefaultConfig(),
		Expansion:            chunking.DefaultExpansionConfig(),
		Compression:          chunking.DefaultCompressionConfig(),
		Budget:               budget.DefaultLimits(),
	}
}

// Reranker is the reranking-stage collaborator interface (spec §4.5);
// fusion.CrossEncoderReranker, fusion.CohereReranker and
// fusion.LegalBoostReranker all satisfy it.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []ragcore.RetrievalResult, topK int) ([]ragcore.RetrievalResult, error)
}

// Orchestrator wires every already-built stage package into spec §4.1's
// twelve-stage sequence.
type Orchestrator struct {
	Lexical Retriever
	Vector  Retriever
	Graph   Retriever

	Expander *expansion.Expander
	CRAG     *crag.Orchestrator
	Reranker Reranker
	Siblings chunking.SiblingFetcher

	cfg    Config
	logger *logrus.Logger
}

// New builds an Orchestrator. Vector, Graph, Expander, Reranker and Siblings
// may be nil; the corresponding stage is then skipped regardless of
// Options, same as an upstream-unavailable soft failure.
func New(lexical, vector, graph Retriever, expander *expansion.Expander, cragOrch *crag.Orchestrator, reranker Reranker, siblings chunking.SiblingFetcher, cfg Config, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Datasets == nil {
		cfg.Datasets = []string{}
	}
	return &Orchestrator{
		Lexical:  lexical,
		Vector:   vector,
		Graph:    graph,
		Expander: expander,
		CRAG:     cragOrch,
		Reranker: reranker,
		Siblings: siblings,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search runs the full twelve-stage retrieval sequence for req and returns
// the fused, corrected, reranked, expanded and compressed result set.
func (o *Orchestrator) Search(ctx context.Context, req Request, meter *budget.Meter) (*PipelineResult, error) {
	if req.TopK <= 0 {
		req.TopK = 10
	}
	if req.TopK > 50 {
		req.TopK = 50
	}

	datasets := req.Sources
	if len(datasets) == 0 {
		datasets = o.cfg.Datasets
	}
	graphOnly := req.Query == "" && req.Options.EnableGraphRetrieval
	if req.Query == "" && !graphOnly {
		return nil, ragcore.NewCoreError(ragcore.ErrInvalidRequest, "query is required unless graph-only retrieval is requested", nil)
	}
	if o.Lexical == nil && o.Vector == nil && (o.Graph == nil || !req.Options.EnableGraphRetrieval) {
		return nil, ragcore.NewCoreError(ragcore.ErrNoSources, "no retriever configured for this request", nil)
	}

	if meter == nil {
		meter = budget.NewMeter(o.cfg.Budget)
	}

	requestID := uuid.New().String()
	trace := ragcore.NewTrace(requestID, req.Query)

	ctx, cancel := context.WithTimeout(ctx, o.effectiveOverallTimeout())
	defer cancel()

	// Stage 1: query rewrite (conversational history supplied).
	query := req.Query
	if req.Options.History != "" && o.Expander != nil {
		rewritten := o.stageRewrite(ctx, query, req.Options, meter, trace)
		if rewritten != "" {
			query = rewritten
		}
	}

	// Stage 4: query expansion (HyDE / multi-query), original always
	// included as the first variant.
	variants := []string{query}
	var hypothetical string
	if o.Expander != nil && (req.Options.EnableHyDE || req.Options.EnableMultiQuery) {
		result := o.Expander.Expand(ctx, query, "", req.Options.Summary, meter, trace)
		if req.Options.EnableMultiQuery {
			variants = dedupeVariants(append(variants, result.Variants...))
		}
		if req.Options.EnableHyDE {
			hypothetical = result.Hypothetical
		}
	}

	// Stage 3: lexical-first gating.
	skipVector := false
	if req.Options.EnableLexicalFirstGating && o.cfg.CitationPattern != nil && o.cfg.CitationPattern.MatchString(query) {
		if lexTop, ok := o.Lexical.(interface {
			TopCitationScore(query string, scope ragcore.ScopeContext) float64
		}); ok {
			score := lexTop.TopCitationScore(query, req.Scope)
			if score >= o.cfg.LexicalGateThreshold {
				skipVector = true
				trace.RecordStage(ragcore.StageEvent{Stage: "lexical_first_gating", StartedAt: time.Now(), Output: "vector_skipped"})
			}
		}
	}

	// Stage 5: retrieval fan-out.
	perRetriever, err := o.fanOut(ctx, variants, hypothetical, datasets, req, skipVector, trace)
	if err != nil {
		return nil, err
	}
	if err := meter.CheckWallTime(); err != nil {
		return nil, err
	}

	succeeded := 0
	for _, r := range perRetriever {
		if len(r) > 0 {
			succeeded++
		}
	}
	if succeeded < o.cfg.MinSourcesRequired {
		trace.SetEvidenceLevel(ragcore.EvidenceInsufficient)
		return &PipelineResult{Results: nil, Trace: trace, EvidenceLevel: ragcore.EvidenceInsufficient}, nil
	}

	// Stage 6: RRF fusion.
	fused := fusion.Fuse(perRetriever, o.cfg.Fusion)
	trace.RecordStage(ragcore.StageEvent{Stage: "fusion", StartedAt: time.Now(), Output: fmt.Sprintf("%d results", len(fused))})

	// Stage 7: CRAG gate + corrective retries.
	results := fused
	var evidenceLevel ragcore.EvidenceLevel
	if req.Options.EnableCRAG && o.CRAG != nil {
		retry := o.cragRetry(ctx, query, datasets, req, meter, trace)
		finalResults, eval := o.CRAG.Run(ctx, fused, req.TopK, trace, retry, o.logger)
		results = finalResults
		evidenceLevel = eval.EvidenceLevel
	} else {
		gate := crag.NewGate(crag.DefaultConfig())
		evidenceLevel = gate.Evaluate(fused).EvidenceLevel
	}
	trace.SetEvidenceLevel(evidenceLevel)

	// Stage 8: reranking.
	if req.Options.EnableRerank && o.Reranker != nil && len(results) > 0 {
		reranked, err := o.Reranker.Rerank(ctx, query, results, req.TopK)
		if err != nil {
			trace.RecordStage(ragcore.StageEvent{Stage: "rerank", StartedAt: time.Now(), Err: err.Error()})
		} else {
			results = reranked
		}
	}
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}

	// Stage 9: chunk expansion.
	if req.Options.EnableChunkExpansion && o.Siblings != nil {
		results = chunking.Expand(results, o.Siblings, o.cfg.Expansion)
	}

	// Stage 10: compression.
	if req.Options.EnableCompression {
		results = chunking.Compress(query, results, o.cfg.Compression)
	}

	// Stage 12: audit/trace — source attribution.
	attribution := make([]ragcore.AttributionEntry, 0, len(results))
	for i, r := range results {
		attribution = append(attribution, ragcore.AttributionEntry{
			ChunkID:       r.Chunk.ID,
			Score:         r.FusedScore,
			Dataset:       r.Chunk.Dataset,
			Rank:          i + 1,
			EvidenceLevel: evidenceLevel,
		})
	}
	trace.SetAttribution(attribution)

	return &PipelineResult{
		Results:          results,
		Trace:            trace,
		EvidenceLevel:    evidenceLevel,
		CompressedBundle: compressedBundle(results),
	}, nil
}

func (o *Orchestrator) effectiveOverallTimeout() time.Duration {
	if o.cfg.OverallTimeout <= 0 {
		return 20 * time.Second
	}
	return o.cfg.OverallTimeout
}

func (o *Orchestrator) stageRewrite(ctx context.Context, query string, opts Options, meter *budget.Meter, trace *ragcore.Trace) string {
	started := time.Now()
	result := o.Expander.Expand(ctx, query, opts.History, opts.Summary, meter, trace)
	rewritten := result.Rewritten
	if rewritten == "" {
		rewritten = query
	}
	trace.RecordRewrite(ragcore.RewriteRecord{Original: query, Rewritten: rewritten, UsedHistory: opts.History != ""})
	trace.RecordStage(ragcore.StageEvent{Stage: "query_rewrite", StartedAt: started, Duration: time.Since(started)})
	return rewritten
}

// fetchKFor computes the per-variant fetch budget: fetch_k / variant_count,
// rounded up, minimum 3 (spec §4.1 stage 5).
func (o *Orchestrator) fetchKFor(variantCount int) int {
	if variantCount <= 0 {
		variantCount = 1
	}
	k := (o.cfg.FetchK + variantCount - 1) / variantCount
	if k < 3 {
		k = 3
	}
	return k
}

// fanOut runs lexical (always), vector (unless skipped) and graph (if
// enabled) concurrently, each under its own soft per-stage timeout,
// expanding variants for vector search. A per-retriever error is recorded
// in trace and treated as zero results rather than aborting the request.
func (o *Orchestrator) fanOut(ctx context.Context, variants []string, hypothetical string, datasets []string, req Request, skipVector bool, trace *ragcore.Trace) (map[ragcore.RetrieverName][]ragcore.RetrievalResult, error) {
	perRetriever := make(map[ragcore.RetrieverName][]ragcore.RetrievalResult)
	mu := newMuGuard()

	g, gctx := errgroup.WithContext(ctx)

	if o.Lexical != nil {
		g.Go(func() error {
			started := time.Now()
			stageCtx, cancel := context.WithTimeout(gctx, o.Lexical.Timeout())
			defer cancel()
			res, err := o.Lexical.Search(stageCtx, variants[0], datasets, o.fetchKFor(1), req.Scope)
			recordStage(trace, "lexical_retrieval", started, err, stageCtx)
			if err == nil {
				mu.set(perRetriever, ragcore.RetrieverLexical, res)
			}
			return nil
		})
	}

	if o.Vector != nil && !skipVector {
		fetchK := o.fetchKFor(len(variants))
		g.Go(func() error {
			started := time.Now()
			stageCtx, cancel := context.WithTimeout(gctx, o.Vector.Timeout())
			defer cancel()

			var all []ragcore.RetrievalResult
			queries := variants
			if hypothetical != "" {
				queries = append(append([]string{}, variants...), hypothetical)
			}
			for _, q := range queries {
				res, err := o.Vector.Search(stageCtx, q, datasets, fetchK, req.Scope)
				if err != nil {
					continue
				}
				all = append(all, res...)
			}
			recordStage(trace, "vector_retrieval", started, nil, stageCtx)
			if len(all) > 0 {
				mu.set(perRetriever, ragcore.RetrieverVector, dedupeResults(all))
			}
			return nil
		})
	}

	if o.Graph != nil && req.Options.EnableGraphRetrieval {
		g.Go(func() error {
			started := time.Now()
			stageCtx, cancel := context.WithTimeout(gctx, o.Graph.Timeout())
			defer cancel()
			res, err := o.Graph.Search(stageCtx, variants[0], datasets, o.fetchKFor(1), req.Scope)
			recordStage(trace, "graph_retrieval", started, err, stageCtx)
			if err == nil {
				mu.set(perRetriever, ragcore.RetrieverGraph, res)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, ragcore.NewCoreError(ragcore.ErrTimeout, "retrieval fan-out did not complete", err)
	}
	return perRetriever, nil
}

func recordStage(trace *ragcore.Trace, stage string, started time.Time, err error, ctx context.Context) {
	ev := ragcore.StageEvent{Stage: stage, StartedAt: started, Duration: time.Since(started)}
	if err != nil {
		ev.Err = err.Error()
	}
	if ctx.Err() != nil {
		ev.TimedOut = true
	}
	trace.RecordStage(ev)
}

// cragRetry builds the crag.Retry callback that re-runs fan-out and fusion
// with a corrective strategy's parameters (spec §4.7: expanded top_k,
// re-weighted hybrid fusion, optional multi-query/HyDE variants added on
// top of whatever expansion already produced).
func (o *Orchestrator) cragRetry(ctx context.Context, query string, datasets []string, req Request, meter *budget.Meter, trace *ragcore.Trace) crag.Retry {
	return func(ctx2 context.Context, params crag.RetryParameters) ([]ragcore.RetrievalResult, error) {
		variants := []string{query}
		var hypothetical string
		if o.Expander != nil && (params.UseMultiQuery || params.UseHyDE) {
			result := o.Expander.Expand(ctx2, query, "", req.Options.Summary, meter, trace)
			if params.UseMultiQuery {
				variants = dedupeVariants(append(variants, result.Variants...))
			}
			if params.UseHyDE {
				hypothetical = result.Hypothetical
			}
		}

		retryReq := req
		retryReq.TopK = params.TopK
		if retryReq.TopK <= 0 {
			retryReq.TopK = req.TopK
		}

		perRetriever, err := o.fanOut(ctx2, variants, hypothetical, datasets, retryReq, false, ragcore.NewTrace("crag-retry", query))
		if err != nil {
			return nil, err
		}

		fusionCfg := o.cfg.Fusion
		if params.LexicalWeight > 0 || params.SemanticWeight > 0 {
			graphWeight := 1.0
			if w, ok := fusionCfg.Weights[ragcore.RetrieverGraph]; ok {
				graphWeight = w
			}
			fusionCfg.Weights = map[ragcore.RetrieverName]float64{
				ragcore.RetrieverLexical: params.LexicalWeight,
				ragcore.RetrieverVector:  params.SemanticWeight,
				ragcore.RetrieverGraph:   graphWeight,
			}
		}
		return fusion.Fuse(perRetriever, fusionCfg), nil
	}
}

func compressedBundle(results []ragcore.RetrievalResult) string {
	out := ""
	for _, r := range results {
		text := r.FullText
		if r.CompressedText != nil {
			text = *r.CompressedText
		}
		if out != "" {
			out += "\n\n---\n\n"
		}
		out += text
	}
	return out
}

func dedupeVariants(variants []string) []string {
	seen := make(map[string]bool, len(variants))
	out := make([]string, 0, len(variants))
	for _, v := range variants {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func dedupeResults(results []ragcore.RetrievalResult) []ragcore.RetrievalResult {
	best := make(map[string]ragcore.RetrievalResult, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		id := r.Chunk.ID
		existing, ok := best[id]
		if !ok {
			order = append(order, id)
			best[id] = r
			continue
		}
		if r.PerRetrieverScore[ragcore.RetrieverVector] > existing.PerRetrieverScore[ragcore.RetrieverVector] {
			best[id] = r
		}
	}
	sort.Strings(order)
	out := make([]ragcore.RetrievalResult, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

// muGuard serializes writes into the shared perRetriever map from the
// errgroup's concurrent goroutines; each goroutine owns a disjoint key, so
// this only needs to guard the map write itself, not a read-modify-write.
type muGuard struct {
	ch chan struct{}
}

func newMuGuard() *muGuard {
	g := &muGuard{ch: make(chan struct{}, 1)}
	g.ch <- struct{}{}
	return g
}

func (m *muGuard) set(dst map[ragcore.RetrieverName][]ragcore.RetrievalResult, name ragcore.RetrieverName, results []ragcore.RetrievalResult) {
	<-m.ch
	dst[name] = results
	m.ch <- struct{}{}
}
