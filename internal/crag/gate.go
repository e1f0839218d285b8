// Package crag implements the CRAG Gate (spec §4.7): evidence
// classification against best-score/avg-top-3 thresholds and an ordered
// list of corrective strategies, grounded on
// original_source/apps/api/app/services/crag_gate.py (CRAGGate,
// RetryStrategyBuilder, CRAGOrchestrator).
package crag

import (
	"fmt"

	"legalrag/internal/ragcore"
)

// Config holds the gate's threshold and retry-strategy tuning, mirroring
// CRAGConfig's field names and env-driven defaults.
type Config struct {
	MinBestScore       float64
	MinAvgScore        float64
	StrongBestThresh   float64
	StrongAvgThresh    float64
	MaxRetryRounds     int
	EnableMultiQuery   bool
	EnableHyDE         bool
	MultiQueryMax      int
	AggressiveTopKMult float64
	AggressiveBM25W    float64
	AggressiveSemW     float64
}

// DefaultConfig mirrors CRAGConfig.from_env's defaults.
func DefaultConfig() Config {
	return Config{
		MinBestScore:       0.35,
		MinAvgScore:        0.25,
		StrongBestThresh:   0.65,
		StrongAvgThresh:    0.50,
		MaxRetryRounds:     2,
		EnableMultiQuery:   true,
		EnableHyDE:         true,
		MultiQueryMax:      3,
		AggressiveTopKMult: 2.0,
		AggressiveBM25W:    0.45,
		AggressiveSemW:     0.55,
	}
}

// Evaluation is the gate's assessment of a fused result set.
type Evaluation struct {
	GatePassed         bool
	EvidenceLevel      ragcore.EvidenceLevel
	BestScore          float64
	AvgTop3            float64
	ResultCount        int
	Reason             string
	RecommendedActions []string
}

// Gate evaluates fused results against Config's thresholds.
type Gate struct {
	cfg Config
}

// NewGate builds a Gate bound to cfg.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Evaluate scores results (already fused/ranked, highest first) and
// classifies the evidence level, per spec §4.7's "best-score and
// average-top-3" classification rule.
func (g *Gate) Evaluate(results []ragcore.RetrievalResult) Evaluation {
	if len(results) == 0 {
		return Evaluation{
			GatePassed:         false,
			EvidenceLevel:      ragcore.EvidenceInsufficient,
			Reason:             "no results returned from search",
			RecommendedActions: []string{"multi_query", "hyde", "expand_sources"},
		}
	}

	best := resultScore(results[0])
	for _, r := range results {
		if s := resultScore(r); s > best {
			best = s
		}
	}

	top3Count := len(results)
	if top3Count > 3 {
		top3Count = 3
	}
	var sum float64
	for i := 0; i < top3Count; i++ {
		sum += resultScore(results[i])
	}
	avgTop3 := sum / float64(top3Count)

	level := g.classify(best, avgTop3)
	gatePassed := best >= g.cfg.MinBestScore && avgTop3 >= g.cfg.MinAvgScore

	return Evaluation{
		GatePassed:    gatePassed,
		EvidenceLevel: level,
		BestScore:     best,
		AvgTop3:       avgTop3,
		ResultCount:   len(results),
		Reason: fmt.Sprintf("best=%.3f (threshold=%.2f), avg_top3=%.3f (threshold=%.2f)",
			best, g.cfg.MinBestScore, avgTop3, g.cfg.MinAvgScore),
		RecommendedActions: g.recommendedActions(level, best),
	}
}

func resultScore(r ragcore.RetrievalResult) float64 {
	if r.RerankScore != nil {
		return *r.RerankScore
	}
	return r.FusedScore
}

func (g *Gate) classify(best, avgTop3 float64) ragcore.EvidenceLevel {
	if best >= g.cfg.StrongBestThresh && avgTop3 >= g.cfg.StrongAvgThresh {
		return ragcore.EvidenceStrong
	}
	if best >= g.cfg.MinBestScore && avgTop3 >= g.cfg.MinAvgScore {
		return ragcore.EvidenceModerate
	}
	if best > 0 || avgTop3 > 0 {
		return ragcore.EvidenceLow
	}
	return ragcore.EvidenceInsufficient
}

func (g *Gate) recommendedActions(level ragcore.EvidenceLevel, best float64) []string {
	switch level {
	case ragcore.EvidenceStrong:
		return nil
	case ragcore.EvidenceModerate:
		return []string{"expand_top_k"}
	}

	var actions []string
	if g.cfg.EnableMultiQuery {
		actions = append(actions, "multi_query")
	}
	if best < g.cfg.MinBestScore*0.5 && g.cfg.EnableHyDE {
		actions = append(actions, "hyde")
	}
	actions = append(actions, "aggressive_hybrid")

	if level == ragcore.EvidenceInsufficient {
		actions = append(actions, "expand_sources")
		if g.cfg.EnableHyDE && !containsString(actions, "hyde") {
			actions = append(actions, "hyde")
		}
	}
	return actions
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
