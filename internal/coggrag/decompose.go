package coggrag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"legalrag/internal/budget"
	"legalrag/internal/llmprovider"
	"legalrag/internal/ragcore"

	"github.com/google/uuid"
)

const decomposePrompt = `Você é um assistente jurídico especializado em decompor perguntas complexas.

Decomponha a pergunta abaixo em até %d sub-perguntas independentes, cada uma respondível isoladamente com evidência jurídica. Se a pergunta já for simples e direta, responda apenas com a própria pergunta.

<pergunta>
%s
</pergunta>

Liste cada sub-pergunta em uma linha numerada (1., 2., ...). Não adicione explicações.`

var numberedLineRe = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)

// complexityScore heuristically estimates how much a question would benefit
// from further decomposition, scoring higher for longer, multi-clause
// questions with legal conjunctions joining distinct issues.
func complexityScore(question string) float64 {
	if question == "" {
		return 0
	}
	score := 0.0
	words := strings.Fields(question)
	if len(words) > 25 {
		score += 0.3
	} else if len(words) > 12 {
		score += 0.15
	}

	lower := strings.ToLower(question)
	conjunctions := []string{" e ", " ou ", " mas ", " salvo ", " quando ", " caso ", " considerando "}
	for _, c := range conjunctions {
		if strings.Contains(lower, c) {
			score += 0.15
		}
	}
	score += float64(strings.Count(question, "?")-1) * 0.1
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// parseNumberedList extracts sub-question text from an LLM's numbered-list
// response, falling back to one question per non-empty line if no line
// matched the "N. question" shape.
func parseNumberedList(text string, maxChildren int) []string {
	lines := strings.Split(text, "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := numberedLineRe.FindStringSubmatch(line); m != nil {
			out = append(out, strings.TrimSpace(m[1]))
		}
	}
	if len(out) == 0 {
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line != "" {
				out = append(out, line)
			}
		}
	}
	if len(out) > maxChildren {
		out = out[:maxChildren]
	}
	return out
}

// Decomposer builds the sub-question tree, spec §4.9 stage 1.
type Decomposer struct {
	provider llmprovider.Provider
	cfg      Config
}

// NewDecomposer wraps provider for decomposition calls.
func NewDecomposer(provider llmprovider.Provider, cfg Config) *Decomposer {
	return &Decomposer{provider: provider, cfg: cfg}
}

// Decompose builds a tree rooted at question, recursing to opts.MaxDepth and
// never exceeding opts.MaxChildren per node, stopping early at any node whose
// complexityScore is below opts.ComplexityThreshold (it becomes a leaf).
func (d *Decomposer) Decompose(ctx context.Context, question string, opts Options, meter *budget.Meter, trace *ragcore.Trace) (SubQuestion, error) {
	root := SubQuestion{NodeID: uuid.New().String(), Question: question, Depth: 0}
	if err := d.expand(ctx, &root, opts, meter, trace); err != nil {
		return root, err
	}
	return root, nil
}

func (d *Decomposer) expand(ctx context.Context, node *SubQuestion, opts Options, meter *budget.Meter, trace *ragcore.Trace) error {
	node.Complexity = complexityScore(node.Question)
	if node.Depth >= opts.MaxDepth || node.Complexity < opts.ComplexityThreshold || d.provider == nil {
		node.IsLeaf = true
		return nil
	}

	prompt := fmt.Sprintf(decomposePrompt, opts.MaxChildren, node.Question)
	text, usage, err := d.provider.Generate(ctx, prompt, "", 256, 0.2, d.cfg.DecomposeTimeout)
	if meter != nil {
		if chargeErr := meter.ChargeLLMCall(usage.CompletionTokens); chargeErr != nil {
			return chargeErr
		}
	}
	if trace != nil {
		trace.RecordStage(ragcore.StageEvent{Stage: "coggrag.decompose", Err: errString(err)})
	}
	if err != nil || text == "" {
		node.IsLeaf = true
		return nil
	}

	children := parseNumberedList(text, opts.MaxChildren)
	if len(children) <= 1 {
		node.IsLeaf = true
		return nil
	}

	for i, q := range children {
		child := SubQuestion{
			NodeID:   node.NodeID + "." + strconv.Itoa(i+1),
			ParentID: node.NodeID,
			Question: q,
			Depth:    node.Depth + 1,
		}
		if err := d.expand(ctx, &child, opts, meter, trace); err != nil {
			return err
		}
		node.Children = append(node.Children, child)
	}
	return nil
}

// Leaves returns every leaf node under root in left-to-right order.
func Leaves(node SubQuestion) []SubQuestion {
	if node.IsLeaf || len(node.Children) == 0 {
		return []SubQuestion{node}
	}
	var out []SubQuestion
	for _, c := range node.Children {
		out = append(out, Leaves(c)...)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
