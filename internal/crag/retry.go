package crag

import "legalrag/internal/ragcore"

// RetryParameters describes one corrective retry attempt's search
// parameters, mirroring RetryParameters.to_dict's field set.
type RetryParameters struct {
	TopK            int
	LexicalWeight   float64
	SemanticWeight  float64
	UseMultiQuery   bool
	MultiQueryCount int
	UseHyDE         bool
	StrategyName    string
}

// strategiesForEvidence builds the ordered retry-strategy list for an
// evidence level, matching RetryStrategyBuilder.get_strategies's fixed
// ordering (aggressive hybrid → multi-query → HyDE → combined), resolving
// spec §9's open question in favor of this fixed order (§4.13).
func strategiesForEvidence(cfg Config, baseTopK int, level ragcore.EvidenceLevel, usedMultiQuery, usedHyDE bool) []RetryParameters {
	switch level {
	case ragcore.EvidenceStrong:
		return nil
	case ragcore.EvidenceModerate:
		return []RetryParameters{{
			TopK:           capTopK(int(float64(baseTopK) * 1.5)),
			LexicalWeight:  0.5,
			SemanticWeight: 0.5,
			StrategyName:   "expand_top_k",
		}}
	}

	var strategies []RetryParameters

	strategies = append(strategies, RetryParameters{
		TopK:           capTopK(int(float64(baseTopK) * cfg.AggressiveTopKMult)),
		LexicalWeight:  cfg.AggressiveBM25W,
		SemanticWeight: cfg.AggressiveSemW,
		StrategyName:   "aggressive_hybrid",
	})

	if cfg.EnableMultiQuery && !usedMultiQuery {
		strategies = append(strategies, RetryParameters{
			TopK:            baseTopK,
			LexicalWeight:   0.5,
			SemanticWeight:  0.5,
			UseMultiQuery:   true,
			MultiQueryCount: cfg.MultiQueryMax,
			StrategyName:    "multi_query",
		})
	}

	if cfg.EnableHyDE && !usedHyDE {
		strategies = append(strategies, RetryParameters{
			TopK:           baseTopK,
			LexicalWeight:  0.4,
			SemanticWeight: 0.6,
			UseHyDE:        true,
			StrategyName:   "hyde",
		})
	}

	if level == ragcore.EvidenceInsufficient && cfg.EnableMultiQuery && !usedMultiQuery {
		strategies = append(strategies, RetryParameters{
			TopK:            capTopK(int(float64(baseTopK) * cfg.AggressiveTopKMult)),
			LexicalWeight:   cfg.AggressiveBM25W,
			SemanticWeight:  cfg.AggressiveSemW,
			UseMultiQuery:   true,
			MultiQueryCount: cfg.MultiQueryMax,
			StrategyName:    "aggressive_multi_query",
		})
	}

	if len(strategies) > cfg.MaxRetryRounds {
		strategies = strategies[:cfg.MaxRetryRounds]
	}
	return strategies
}

func capTopK(v int) int {
	if v > 50 {
		return 50
	}
	return v
}

// Orchestrator drives the evaluate → should-retry → next-strategy loop,
// mirroring CRAGOrchestrator.
type Orchestrator struct {
	cfg  Config
	gate *Gate
}

// NewOrchestrator builds an Orchestrator bound to cfg.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg, gate: NewGate(cfg)}
}

// Evaluate delegates to the underlying Gate.
func (o *Orchestrator) Evaluate(results []ragcore.RetrievalResult) Evaluation {
	return o.gate.Evaluate(results)
}

// ShouldRetry reports whether another corrective round is warranted, given
// the current round number (0 = initial search) and evaluation.
func (o *Orchestrator) ShouldRetry(eval Evaluation, currentRound int) bool {
	if eval.GatePassed {
		return false
	}
	if currentRound >= o.cfg.MaxRetryRounds {
		return false
	}
	if eval.ResultCount == 0 && currentRound > 0 {
		return false
	}
	return eval.EvidenceLevel == ragcore.EvidenceLow || eval.EvidenceLevel == ragcore.EvidenceInsufficient
}

// NextStrategy returns the retry parameters for currentRound, or false once
// the strategy list for this evidence level is exhausted or a retry isn't
// warranted.
func (o *Orchestrator) NextStrategy(eval Evaluation, baseTopK int, usedMultiQuery, usedHyDE bool, currentRound int) (RetryParameters, bool) {
	if !o.ShouldRetry(eval, currentRound) {
		return RetryParameters{}, false
	}
	strategies := strategiesForEvidence(o.cfg, baseTopK, eval.EvidenceLevel, usedMultiQuery, usedHyDE)
	if currentRound >= len(strategies) {
		return RetryParameters{}, false
	}
	return strategies[currentRound], true
}
