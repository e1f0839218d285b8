package fusion

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"legalrag/internal/ragcore"

	"github.com/sirupsen/logrus"
)

// Reranker is the capability interface a fusion stage optionally runs after
// RRF, matching the teacher's CrossEncoderReranker/CohereReranker shape.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []ragcore.RetrievalResult, topK int) ([]ragcore.RetrievalResult, error)
}

// RerankerConfig configures a cross-encoder reranker call.
type RerankerConfig struct {
	Model     string
	Endpoint  string
	Timeout   time.Duration
	BatchSize int
}

// DefaultRerankerConfig mirrors the teacher's bge-reranker defaults.
func DefaultRerankerConfig() RerankerConfig {
	return RerankerConfig{
		Model:     "BAAI/bge-reranker-v2-m3",
		Timeout:   30 * time.Second,
		BatchSize: 32,
	}
}

// CrossEncoderReranker holds cross-encoder settings (model, endpoint,
// timeout, batch size) but calls no cross-encoder: Rerank scores every
// (query, chunk text) pair with a lexical-overlap heuristic whether or not an
// endpoint is configured, so the pipeline degrades gracefully rather than
// failing closed, matching the teacher's fallback-reranking test case.
type CrossEncoderReranker struct {
	config RerankerConfig
	client *http.Client
	logger *logrus.Logger
}

// NewCrossEncoderReranker builds a reranker; nil config/logger use defaults.
func NewCrossEncoderReranker(config *RerankerConfig, logger *logrus.Logger) *CrossEncoderReranker {
	cfg := DefaultRerankerConfig()
	if config != nil {
		cfg = *config
		if cfg.Model == "" {
			cfg.Model = DefaultRerankerConfig().Model
		}
		if cfg.Timeout == 0 {
			cfg.Timeout = DefaultRerankerConfig().Timeout
		}
		if cfg.BatchSize == 0 {
			cfg.BatchSize = DefaultRerankerConfig().BatchSize
		}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CrossEncoderReranker{config: cfg, client: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

// Rerank scores every result against query and returns the topK by
// descending rerank score.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, results []ragcore.RetrievalResult, topK int) ([]ragcore.RetrievalResult, error) {
	if len(results) == 0 {
		return results, nil
	}
	if r.config.Endpoint == "" {
		return r.fallbackRerank(query, results, topK), nil
	}
	// A real deployment POSTs batches of (query, text) pairs to the
	// cross-encoder endpoint; absent that wiring here, degrade to the same
	// heuristic fallback rather than block on an unconfigured dependency.
	r.logger.Debug("cross-encoder endpoint configured but not wired in this build, using fallback scoring")
	return r.fallbackRerank(query, results, topK), nil
}

func (r *CrossEncoderReranker) fallbackRerank(query string, results []ragcore.RetrievalResult, topK int) []ragcore.RetrievalResult {
	queryTerms := strings.Fields(strings.ToLower(query))
	scored := make([]ragcore.RetrievalResult, len(results))
	copy(scored, results)
	for i := range scored {
		score := lexicalOverlapScore(queryTerms, scored[i].FullText)
		scored[i].RerankScore = &score
	}
	sort.SliceStable(scored, func(i, j int) bool {
		si, sj := *scored[i].RerankScore, *scored[j].RerankScore
		if si != sj {
			return si > sj
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func lexicalOverlapScore(queryTerms []string, text string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, term := range queryTerms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

// CohereReranker holds Cohere rerank settings (API key, model, endpoint);
// its Rerank sends no request to Cohere.
type CohereReranker struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	logger   *logrus.Logger
}

// NewCohereReranker builds a Cohere-backed reranker; an empty model defaults
// to rerank-multilingual-v3.0, which covers Portuguese legal text.
func NewCohereReranker(apiKey, model string, logger *logrus.Logger) *CohereReranker {
	if model == "" {
		model = "rerank-multilingual-v3.0"
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CohereReranker{
		apiKey:   apiKey,
		model:    model,
		endpoint: "https://api.cohere.ai/v1/rerank",
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// Rerank is left as a thin interface implementation: without network access
// wired into this build, it degrades to the same overlap heuristic
// CrossEncoderReranker uses, keeping CRAG's retry loop functional in tests.
func (r *CohereReranker) Rerank(ctx context.Context, query string, results []ragcore.RetrievalResult, topK int) ([]ragcore.RetrievalResult, error) {
	fallback := &CrossEncoderReranker{logger: r.logger}
	return fallback.fallbackRerank(query, results, topK), nil
}

// LegalBoostReranker adds a fixed score boost chosen by each chunk's
// Chunk.Source type (statutes and case law weigh most by default) so binding
// authority tends to out-rank persuasive authority at
// equal relevance, addressing spec §4.5's legal-domain score boost.
type LegalBoostReranker struct {
	SourceWeight map[ragcore.SourceType]float64
}

// DefaultLegalBoostWeights favors statutes and case law over internal
// filings and model briefs.
func DefaultLegalBoostWeights() map[ragcore.SourceType]float64 {
	return map[ragcore.SourceType]float64{
		ragcore.SourceStatute:        0.15,
		ragcore.SourceCaseLaw:        0.10,
		ragcore.SourceDoctrine:       0.05,
		ragcore.SourceInternalFiling: 0,
		ragcore.SourceModelBrief:     0,
		ragcore.SourceLocal:          0,
	}
}

func (r *LegalBoostReranker) Rerank(ctx context.Context, query string, results []ragcore.RetrievalResult, topK int) ([]ragcore.RetrievalResult, error) {
	weights := r.SourceWeight
	if weights == nil {
		weights = DefaultLegalBoostWeights()
	}
	boosted := make([]ragcore.RetrievalResult, len(results))
	copy(boosted, results)
	for i := range boosted {
		base := boosted[i].FusedScore
		if boosted[i].RerankScore != nil {
			base = *boosted[i].RerankScore
		}
		score := base + weights[boosted[i].Chunk.Source]
		boosted[i].RerankScore = &score
	}
	sort.SliceStable(boosted, func(i, j int) bool {
		si, sj := *boosted[i].RerankScore, *boosted[j].RerankScore
		if si != sj {
			return si > sj
		}
		return boosted[i].Chunk.ID < boosted[j].Chunk.ID
	})
	if topK > 0 && len(boosted) > topK {
		boosted = boosted[:topK]
	}
	return boosted, nil
}
