package expansion

import (
	"context"
	"strings"
	"testing"
	"time"

	"legalrag/internal/budget"
	"legalrag/internal/llmprovider"
	"legalrag/internal/ragcore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticProvider(respond func(prompt string) string) *llmprovider.StaticProvider {
	return &llmprovider.StaticProvider{ProviderName: "static", Respond: respond}
}

func TestExpand_EmptyQuery(t *testing.T) {
	e := NewExpander(nil, DefaultConfig(), nil)
	result := e.Expand(context.Background(), "   ", "", "", nil, nil)
	assert.Empty(t, result.Variants)
	assert.Empty(t, result.Hypothetical)
}

func TestExpand_NilProviderFallsBackToHeuristics(t *testing.T) {
	e := NewExpander(nil, DefaultConfig(), nil)
	result := e.Expand(context.Background(), "O que diz o STF sobre rescisão indireta?", "", "", nil, nil)
	require.NotEmpty(t, result.Variants)
	assert.Equal(t, "O que diz o STF sobre rescisão indireta?", result.Variants[0])
	assert.Empty(t, result.Hypothetical)
}

func TestExpand_HyDEGeneratesHypotheticalDocument(t *testing.T) {
	provider := staticProvider(func(prompt string) string { return "Documento hipotético de teste." })
	e := NewExpander(provider, DefaultConfig(), nil)
	result := e.Expand(context.Background(), "requisitos para habeas corpus", "", "", nil, nil)
	assert.Equal(t, "Documento hipotético de teste.", result.Hypothetical)
}

func TestExpand_MultiQueryIncludesOriginalFirst(t *testing.T) {
	provider := staticProvider(func(prompt string) string {
		return "variante um\nvariante dois\nvariante tres"
	})
	cfg := DefaultConfig()
	cfg.HyDEEnabled = false
	e := NewExpander(provider, cfg, nil)
	result := e.Expand(context.Background(), "prazo recursal", "", "", nil, nil)
	require.NotEmpty(t, result.Variants)
	assert.Equal(t, "prazo recursal", result.Variants[0])
	assert.LessOrEqual(t, len(result.Variants), cfg.MultiQueryCount)
}

func TestExpand_BudgetSoftWarnSkipsLLMCalls(t *testing.T) {
	limits := budget.DefaultLimits()
	limits.SoftWarnLLMCalls = 0
	meter := budget.NewMeter(limits)

	called := false
	provider := staticProvider(func(prompt string) string {
		called = true
		return "should not be used"
	})
	trace := ragcore.NewTrace("req-1", "query")

	e := NewExpander(provider, DefaultConfig(), nil)
	result := e.Expand(context.Background(), "indenização por dano moral", "", "", meter, trace)

	assert.False(t, called)
	require.NotEmpty(t, result.Variants)

	events := trace.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "budget_skip", events[0].Output)
}

func TestHeuristicVariants_ExpandsAbbreviations(t *testing.T) {
	e := NewExpander(nil, DefaultConfig(), nil)
	variants := e.heuristicVariants("O STF decidiu sobre o CPC?", 3)
	found := false
	for _, v := range variants {
		if strings.Contains(v, "Supremo Tribunal Federal") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestHeuristicVariants_RemovesQuestionMark(t *testing.T) {
	e := NewExpander(nil, DefaultConfig(), nil)
	variants := e.heuristicVariants("Qual o prazo de prescrição?", 3)
	found := false
	for _, v := range variants {
		if v == "Qual o prazo de prescrição" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExpander_CachesHypotheticalDocument(t *testing.T) {
	calls := 0
	provider := staticProvider(func(prompt string) string {
		calls++
		return "cached doc"
	})
	cfg := DefaultConfig()
	e := NewExpander(provider, cfg, nil)

	ctx := context.Background()
	first := e.hypotheticalDocument(ctx, "mesma pergunta", nil)
	second := e.hypotheticalDocument(ctx, "mesma pergunta", nil)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestTTLCache_ExpiresEntries(t *testing.T) {
	c := newTTLCache(10, time.Millisecond)
	c.set("p", "text", Result{Rewritten: "value"})
	time.Sleep(5 * time.Millisecond)
	_, ok := c.get("p", "text")
	assert.False(t, ok)
}

func TestTTLCache_EvictsWhenFull(t *testing.T) {
	c := newTTLCache(5, time.Hour)
	for i := 0; i < 10; i++ {
		c.set("p", string(rune('a'+i)), Result{Rewritten: "v"})
	}
	assert.LessOrEqual(t, len(c.entries), 5)
}
