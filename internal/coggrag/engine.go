package coggrag

import (
	"context"
	"fmt"

	"legalrag/internal/budget"
	"legalrag/internal/llmprovider"
	"legalrag/internal/ragcore"

	"github.com/sirupsen/logrus"
)

const verifyPrompt = `Você é um revisor jurídico. Verifique se a resposta abaixo contém apenas afirmações sustentadas pelas evidências citadas (marcadores [ref:...] e [path:...]). Responda apenas "OK" se estiver correta, ou explique o problema em uma frase começando com "PROBLEMA:".

<pergunta>
%s
</pergunta>

<resposta>
%s
</resposta>`

// Engine ties every CogGRAG stage together behind the reason() entry point.
type Engine struct {
	decomposer *Decomposer
	gatherer   *Gatherer
	reasoner   *Reasoner
	verifier   llmprovider.Provider
	cfg        Config
	logger     *logrus.Logger
}

// NewEngine wires a full Engine from its collaborators; any of verifier may
// be nil, in which case the verify stage is skipped.
func NewEngine(decomposer *Decomposer, gatherer *Gatherer, reasoner *Reasoner, verifier llmprovider.Provider, cfg Config, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{decomposer: decomposer, gatherer: gatherer, reasoner: reasoner, verifier: verifier, cfg: cfg, logger: logger}
}

// Reason runs the full spec §4.9 pipeline: decompose, gather, refine,
// detect conflicts, reason bottom-up, abstain gate, optionally verify.
func (e *Engine) Reason(ctx context.Context, question string, opts Options, meter *budget.Meter) (Result, error) {
	if meter == nil {
		meter = budget.NewMeter(budget.DefaultLimits())
	}
	trace := ragcore.NewTrace("coggrag-"+shortHash(question), question)

	// Stage 1: decompose.
	root, err := e.decomposer.Decompose(ctx, question, opts, meter, trace)
	if err != nil {
		return Result{}, err
	}

	// Stage 2: gather evidence per leaf.
	leaves := Leaves(root)
	rawEvidence := make(map[string]NodeEvidence, len(leaves))
	for _, leaf := range leaves {
		ev, err := e.gatherer.Gather(ctx, leaf, opts, meter)
		if err != nil {
			return Result{}, err
		}
		rawEvidence[leaf.NodeID] = ev
		trace.RecordStage(ragcore.StageEvent{Stage: "coggrag.gather", Output: fmt.Sprintf("node=%s items=%d", leaf.NodeID, len(ev.Items))})
	}

	// Stage 3: refine evidence.
	refined := Refine(rawEvidence, opts.PriorConsultations)

	// Stage 4: detect conflicts.
	conflicts := DetectConflicts(refined)
	trace.RecordStage(ragcore.StageEvent{Stage: "coggrag.conflicts", Output: fmt.Sprintf("%d found", len(conflicts))})

	// Stage 5: reason bottom-up.
	answers, err := e.reasoner.Reason(ctx, root, refined, conflicts, opts, meter, trace)
	if err != nil {
		return Result{}, err
	}

	subAnswers := make([]NodeAnswer, 0, len(answers))
	avgConfidence := 0.0
	validCount := 0
	for _, leaf := range leaves {
		a, ok := answers[leaf.NodeID]
		if !ok {
			continue
		}
		subAnswers = append(subAnswers, a)
		avgConfidence += a.Confidence
		validCount++
	}
	if validCount > 0 {
		avgConfidence /= float64(validCount)
	}

	mindMap := buildMindMap(root, answers)
	rootAnswer := answers[root.NodeID]

	result := Result{
		Answer:     rootAnswer.Answer,
		SubAnswers: subAnswers,
		MindMap:    mindMap,
		Trace:      trace,
	}

	// Stage 6: abstain gate.
	if opts.AbstainMode && (validCount == 0 || avgConfidence < opts.AbstainThreshold) {
		var issues []string
		if validCount == 0 {
			issues = append(issues, "Não foi possível gerar respostas para as sub-perguntas.")
		} else {
			issues = append(issues, fmt.Sprintf("Confiança média abaixo do limiar (%.2f < %.2f).", avgConfidence, opts.AbstainThreshold))
		}
		result.VerificationStatus = StatusAbstain
		result.Issues = issues
		trace.SetEvidenceLevel(ragcore.EvidenceInsufficient)
		return result, nil
	}

	result.VerificationStatus = StatusApproved
	trace.SetEvidenceLevel(evidenceLevelFromConfidence(avgConfidence))

	// Stage 7: verify (optional, bounded retries).
	if e.verifier != nil && opts.MaxRethinkAttempts > 0 {
		for attempt := 0; attempt < opts.MaxRethinkAttempts; attempt++ {
			ok, issue, err := e.verify(ctx, question, result.Answer, meter)
			if err != nil {
				break
			}
			trace.RecordStage(ragcore.StageEvent{Stage: "coggrag.verify", Output: fmt.Sprintf("attempt=%d ok=%v", attempt+1, ok)})
			if ok {
				result.VerificationStatus = StatusVerified
				break
			}
			result.Issues = append(result.Issues, issue)
			result.RethinkAttempts = attempt + 1
		}
	}

	return result, nil
}

func (e *Engine) verify(ctx context.Context, question, answer string, meter *budget.Meter) (bool, string, error) {
	prompt := fmt.Sprintf(verifyPrompt, question, answer)
	text, usage, err := e.verifier.Generate(ctx, prompt, "", 128, 0.0, e.cfg.VerifyTimeout)
	if meter != nil {
		if chargeErr := meter.ChargeLLMCall(usage.CompletionTokens); chargeErr != nil {
			return false, "", chargeErr
		}
	}
	if err != nil {
		return true, "", nil // verifier unavailable: don't block on it
	}
	if len(text) >= 2 && text[:2] == "OK" {
		return true, "", nil
	}
	return false, text, nil
}

func buildMindMap(node SubQuestion, answers map[string]NodeAnswer) MindMapNode {
	a := answers[node.NodeID]
	m := MindMapNode{
		NodeID:     node.NodeID,
		Question:   node.Question,
		Answer:     a.Answer,
		Confidence: a.Confidence,
		Evidence:   len(a.EvidenceRefs),
	}
	for _, c := range node.Children {
		m.Children = append(m.Children, buildMindMap(c, answers))
	}
	return m
}

func evidenceLevelFromConfidence(conf float64) ragcore.EvidenceLevel {
	switch {
	case conf >= 0.75:
		return ragcore.EvidenceStrong
	case conf >= 0.5:
		return ragcore.EvidenceModerate
	case conf >= 0.3:
		return ragcore.EvidenceLow
	default:
		return ragcore.EvidenceInsufficient
	}
}

func shortHash(s string) string {
	h := contentHash(s)
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
