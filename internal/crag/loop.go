package crag

import (
	"context"
	"time"

	"legalrag/internal/ragcore"

	"github.com/sirupsen/logrus"
)

// Retry is one correction attempt's caller-supplied search execution:
// given strategy parameters, return the new (unfused or already-fused)
// result set for this attempt. Callers typically re-run lexical/vector/
// graph retrieval and re-fuse before returning.
type Retry func(ctx context.Context, params RetryParameters) ([]ragcore.RetrievalResult, error)

// Run executes the evaluate → retry loop against trace, recording every
// corrective action via ragcore.Trace.RecordCorrectiveAction and consulting
// trace.UsedStrategy to avoid repeating a strategy already tried this
// request (spec §4.13, ported from crag_gate.py's used_multi_query/
// used_hyde tracking, generalized to any strategy name).
func (o *Orchestrator) Run(ctx context.Context, initial []ragcore.RetrievalResult, baseTopK int, trace *ragcore.Trace, retry Retry, logger *logrus.Logger) ([]ragcore.RetrievalResult, Evaluation) {
	if logger == nil {
		logger = logrus.New()
	}

	current := initial
	eval := o.Evaluate(current)

	for round := 0; o.ShouldRetry(eval, round); round++ {
		usedMultiQuery := trace != nil && trace.UsedStrategy("multi_query")
		usedHyDE := trace != nil && trace.UsedStrategy("hyde")

		params, ok := o.NextStrategy(eval, baseTopK, usedMultiQuery, usedHyDE, round)
		if !ok {
			break
		}
		if trace != nil && trace.UsedStrategy(params.StrategyName) {
			continue
		}

		started := time.Now()
		results, err := retry(ctx, params)
		duration := time.Since(started)

		var errMsg string
		if err != nil {
			errMsg = err.Error()
			logger.WithError(err).WithField("strategy", params.StrategyName).Warn("crag retry failed")
			results = nil
		}

		newEval := o.Evaluate(results)
		if trace != nil {
			trace.RecordCorrectiveAction(ragcore.CorrectiveAction{
				Strategy:    params.StrategyName,
				Duration:    duration,
				ResultCount: len(results),
				BestScore:   newEval.BestScore,
				AvgTop3:     newEval.AvgTop3,
				Parameters: map[string]interface{}{
					"top_k":           params.TopK,
					"lexical_weight":  params.LexicalWeight,
					"semantic_weight": params.SemanticWeight,
					"use_multi_query": params.UseMultiQuery,
					"use_hyde":        params.UseHyDE,
				},
				Err: errMsg,
			})
		}

		if len(results) > 0 && newEval.BestScore > eval.BestScore {
			current = results
			eval = newEval
		}
	}

	return current, eval
}
