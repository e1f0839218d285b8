package coggrag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"legalrag/internal/budget"
	"legalrag/internal/concurrency"
	"legalrag/internal/llmprovider"
	"legalrag/internal/ragcore"
)

const evidencePolicy = "Use APENAS as evidências fornecidas. Se insuficientes, diga que é insuficiente. Não invente."

const leafAnswerPrompt = `Você é um assistente jurídico especializado.

%s

Responda usando apenas o conteúdo do bloco <evidencia>.
Se não houver evidência suficiente, diga explicitamente.

<evidencia>
%s
</evidencia>

<pergunta>
%s
</pergunta>

Instruções:
1. Baseie sua resposta exclusivamente nas evidências acima.
2. Cite as referências legais quando relevante (Art., Lei, Súmula).
3. Seja objetivo (máximo 3 parágrafos).
4. Se houver conflito entre evidências, mencione as diferentes posições.
5. Sempre que usar um trecho textual, inclua um marcador [ref:<id>] ao final do parágrafo.
6. Sempre que usar evidência de grafo, inclua um marcador [path:<id>] ao final do parágrafo.

Resposta:`

const synthesisPrompt = `Você é um assistente jurídico especializado.

%s

<pergunta>
%s
</pergunta>

<sub_respostas>
%s
</sub_respostas>

Instruções:
1. Integre as sub-respostas de forma coerente.
2. Destaque as referências legais mais relevantes.
3. Se houver contradições, explique.
4. Preserve os marcadores [ref:...] e [path:...] já existentes; não crie novos sem evidência.

Resposta sintetizada:`

var (
	refMarkerRe  = regexp.MustCompile(`\[ref:([^\]]+)\]`)
	pathMarkerRe = regexp.MustCompile(`\[path:([^\]]+)\]`)
	articleRe    = regexp.MustCompile(`[Aa]rt(?:igo)?\.?\s*\d+`)
	statuteRe    = regexp.MustCompile(`[Ll]ei\s+(?:n[ºo°]?\s*)?\d+(?:\.\d+)?(?:/\d+)?`)
	sumulaRe     = regexp.MustCompile(`[Ss]úmula\s+(?:n[ºo°]?\s*)?\d+`)
)

// formatEvidence renders a node's refined evidence into the block the LLM
// prompt cites from, matching reasoner.py's _format_evidence_for_prompt
// header convention ([ref:id] [fonte:x] doc=y score=z).
func formatEvidence(ev NodeEvidence, maxItems int) string {
	if len(ev.Items) == 0 {
		return "Nenhuma evidência textual disponível."
	}
	var lines []string
	for i, item := range ev.Items {
		if i >= maxItems {
			break
		}
		tag := "ref"
		if item.FromGraph {
			tag = "path"
		}
		header := fmt.Sprintf("[%s:%s] [fonte:%s] score=%.2f", tag, item.ChunkID, item.SourceType, item.Score)
		text := item.Text
		if len(text) > 500 {
			text = text[:500]
		}
		lines = append(lines, header+"\n"+strings.TrimSpace(text))
	}
	return strings.Join(lines, "\n")
}

// Reasoner implements spec §4.9 stage 5: bottom-up answer generation with
// citation-constrained leaf answers and LLM-synthesized interior nodes.
type Reasoner struct {
	provider llmprovider.Provider
	cfg      Config
}

// NewReasoner wraps provider for leaf/synthesis calls.
func NewReasoner(provider llmprovider.Provider, cfg Config) *Reasoner {
	return &Reasoner{provider: provider, cfg: cfg}
}

// Reason generates an answer for every leaf under root (bounded concurrency
// via llmMaxConcurrency), then synthesizes interior nodes bottom-up,
// returning the full set of per-node answers plus the root's final answer.
func (r *Reasoner) Reason(ctx context.Context, root SubQuestion, evidence map[string]NodeEvidence, conflicts []Conflict, opts Options, meter *budget.Meter, trace *ragcore.Trace) (map[string]NodeAnswer, error) {
	conflictNodes := conflictedNodes(conflicts)
	answers := make(map[string]NodeAnswer)
	mu := make(chan struct{}, 1)
	mu <- struct{}{}

	leaves := Leaves(root)
	maxConcurrency := opts.LLMMaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = len(leaves)
		if maxConcurrency <= 0 {
			maxConcurrency = 1
		}
	}
	sem := concurrency.NewSemaphore(maxConcurrency)

	errs := make(chan error, len(leaves))
	for _, leaf := range leaves {
		leaf := leaf
		if err := sem.Acquire(ctx); err != nil {
			return nil, err
		}
		go func() {
			defer sem.Release()
			ans, err := r.answerLeaf(ctx, leaf, evidence[leaf.NodeID], conflictNodes[leaf.NodeID], meter, trace)
			<-mu
			answers[leaf.NodeID] = ans
			mu <- struct{}{}
			errs <- err
		}()
	}
	for range leaves {
		if err := <-errs; err != nil {
			return answers, err
		}
	}

	if err := r.synthesize(ctx, root, answers, meter, trace); err != nil {
		return answers, err
	}
	return answers, nil
}

func (r *Reasoner) answerLeaf(ctx context.Context, leaf SubQuestion, ev NodeEvidence, hasConflict bool, meter *budget.Meter, trace *ragcore.Trace) (NodeAnswer, error) {
	evidenceText := formatEvidence(ev, 5)
	prompt := fmt.Sprintf(leafAnswerPrompt, evidencePolicy, evidenceText, leaf.Question)

	var answer string
	var completionTokens int
	if r.provider != nil {
		text, usage, err := r.provider.Generate(ctx, prompt, "", r.cfg.MaxTokens, r.cfg.Temperature, r.cfg.ReasonTimeout)
		if err == nil {
			answer = text
		}
		completionTokens = usage.CompletionTokens
	}
	if meter != nil {
		if chargeErr := meter.ChargeLLMCall(completionTokens); chargeErr != nil {
			return NodeAnswer{}, chargeErr
		}
	}
	if trace != nil {
		trace.RecordStage(ragcore.StageEvent{Stage: "coggrag.reason_leaf"})
	}

	validRefs := make(map[string]bool)
	for _, item := range ev.Items {
		validRefs[item.ChunkID] = true
	}
	refs := extractRefs(answer, validRefs)
	citations := extractCitations(answer)
	confidence := answerConfidence(answer, ev, hasConflict)
	answer = stripInvalidMarkers(answer, validRefs)

	return NodeAnswer{
		NodeID:       leaf.NodeID,
		Question:     leaf.Question,
		Answer:       answer,
		Confidence:   confidence,
		Citations:    citations,
		EvidenceRefs: refs,
		HasConflicts: hasConflict,
	}, nil
}

// stripInvalidMarkers removes [ref:...]/[path:...] substrings whose ID is
// not in validRefs, per spec.md's "unreferenced markers are stripped"
// invariant. An empty validRefs leaves every marker in place, matching
// extractRefs' own "no evidence constraint" behavior.
func stripInvalidMarkers(answer string, validRefs map[string]bool) string {
	if len(validRefs) == 0 {
		return answer
	}
	strip := func(re *regexp.Regexp, text string) string {
		return re.ReplaceAllStringFunc(text, func(m string) string {
			sub := re.FindStringSubmatch(m)
			if len(sub) < 2 || validRefs[strings.TrimSpace(sub[1])] {
				return m
			}
			return ""
		})
	}
	answer = strip(refMarkerRe, answer)
	answer = strip(pathMarkerRe, answer)
	return answer
}

// synthesize fills in answers for every non-leaf node bottom-up, combining
// its children's answers into a coherent synthesis via the LLM, falling
// back to a plain concatenation when no provider is configured.
func (r *Reasoner) synthesize(ctx context.Context, node SubQuestion, answers map[string]NodeAnswer, meter *budget.Meter, trace *ragcore.Trace) error {
	if node.IsLeaf || len(node.Children) == 0 {
		return nil
	}
	for _, child := range node.Children {
		if err := r.synthesize(ctx, child, answers, meter, trace); err != nil {
			return err
		}
	}

	var subAnswerBlocks []string
	avgConf := 0.0
	anyConflict := false
	for _, child := range node.Children {
		a := answers[child.NodeID]
		subAnswerBlocks = append(subAnswerBlocks, fmt.Sprintf("P: %s\nR: %s", a.Question, a.Answer))
		avgConf += a.Confidence
		anyConflict = anyConflict || a.HasConflicts
	}
	if len(node.Children) > 0 {
		avgConf /= float64(len(node.Children))
	}

	answer := strings.Join(subAnswerBlocks, "\n\n")
	completionTokens := 0
	if r.provider != nil {
		prompt := fmt.Sprintf(synthesisPrompt, evidencePolicy, node.Question, answer)
		text, usage, err := r.provider.Generate(ctx, prompt, "", r.cfg.MaxTokens, r.cfg.Temperature, r.cfg.ReasonTimeout)
		if err == nil && text != "" {
			answer = text
		}
		completionTokens = usage.CompletionTokens
	}
	if meter != nil {
		if chargeErr := meter.ChargeLLMCall(completionTokens); chargeErr != nil {
			return chargeErr
		}
	}
	if trace != nil {
		trace.RecordStage(ragcore.StageEvent{Stage: "coggrag.synthesize"})
	}

	var refs, citations []string
	seenRef := make(map[string]bool)
	seenCite := make(map[string]bool)
	for _, child := range node.Children {
		a := answers[child.NodeID]
		for _, ref := range a.EvidenceRefs {
			if !seenRef[ref] {
				seenRef[ref] = true
				refs = append(refs, ref)
			}
		}
		for _, c := range a.Citations {
			if !seenCite[c] {
				seenCite[c] = true
				citations = append(citations, c)
			}
		}
	}

	validRefs := make(map[string]bool, len(refs))
	for _, ref := range refs {
		validRefs[ref] = true
	}
	answer = stripInvalidMarkers(answer, validRefs)

	answers[node.NodeID] = NodeAnswer{
		NodeID:       node.NodeID,
		Question:     node.Question,
		Answer:       answer,
		Confidence:   avgConf,
		Citations:    citations,
		EvidenceRefs: refs,
		HasConflicts: anyConflict,
	}
	return nil
}

func extractRefs(answer string, validRefs map[string]bool) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range refMarkerRe.FindAllStringSubmatch(answer, -1) {
		ref := strings.TrimSpace(m[1])
		if ref == "" || seen[ref] {
			continue
		}
		if len(validRefs) > 0 && !validRefs[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	for _, m := range pathMarkerRe.FindAllStringSubmatch(answer, -1) {
		ref := strings.TrimSpace(m[1])
		if ref == "" || seen[ref] {
			continue
		}
		if len(validRefs) > 0 && !validRefs[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}

func extractCitations(answer string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, re := range []*regexp.Regexp{articleRe, statuteRe, sumulaRe} {
		for _, m := range re.FindAllString(answer, -1) {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out
}

// answerConfidence mirrors reasoner.py's _compute_answer_confidence exactly:
// a 0.5 base, evidence-quantity and quality bonuses, a conflict penalty, and
// an answer-substance adjustment.
func answerConfidence(answer string, ev NodeEvidence, hasConflicts bool) float64 {
	if answer == "" {
		return 0
	}
	confidence := 0.5

	total := len(ev.Items)
	if total >= 5 {
		confidence += 0.2
	} else if total >= 2 {
		confidence += 0.1
	}

	confidence += ev.QualityScore * 0.2

	if hasConflicts {
		confidence -= 0.15
	}

	if len(answer) > 200 {
		confidence += 0.1
	} else if len(answer) < 50 {
		confidence -= 0.1
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
