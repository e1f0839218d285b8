// Package llmprovider adapts the generate/research collaborator interfaces
// spec §6 requires (LLM providers, deep-research providers) behind a small
// registry, generalizing the teacher's provider-registry pattern
// (internal/services.ProviderRegistry, internal/conversation.LLMClient) to a
// pluggable multi-provider surface.
package llmprovider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Usage reports token accounting for one Generate call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Provider is the Generate collaborator interface from spec §6: used for
// query rewrite, HyDE, multi-query, CogGRAG decompose/reason/verify.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt, modelID string, maxTokens int, temperature float64, timeout time.Duration) (text string, usage Usage, err error)
	Health(ctx context.Context) error
}

// ResearchResult is the richer output of a DeepResearchProvider.
type ResearchResult struct {
	Text          string
	Sources       []string
	ThinkingSteps []string
}

// DeepResearchProvider is the richer research collaborator the agentic
// orchestrator exposes as a tool (spec §6).
type DeepResearchProvider interface {
	Name() string
	Research(ctx context.Context, query string, options map[string]interface{}) (ResearchResult, error)
}

// Registry holds every registered Provider/DeepResearchProvider, ordered by
// a caller-assigned score, mirroring the teacher's
// ProviderRegistry.ListProvidersOrderedByScore pattern.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	research  map[string]DeepResearchProvider
	scores    map[string]float64
	logger    *logrus.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		providers: make(map[string]Provider),
		research:  make(map[string]DeepResearchProvider),
		scores:    make(map[string]float64),
		logger:    logger,
	}
}

// Register adds a Provider under name with a priority score (higher tried
// first).
func (r *Registry) Register(name string, p Provider, score float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
	r.scores[name] = score
}

// RegisterResearch adds a DeepResearchProvider under name.
func (r *Registry) RegisterResearch(name string, p DeepResearchProvider, score float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.research[name] = p
	r.scores[name] = score
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// GetResearch returns the named deep-research provider.
func (r *Registry) GetResearch(name string) (DeepResearchProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.research[name]
	return p, ok
}

// OrderedByScore returns every registered provider name sorted by descending
// score, ties broken alphabetically for determinism.
func (r *Registry) OrderedByScore() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if r.scores[names[i]] != r.scores[names[j]] {
			return r.scores[names[i]] > r.scores[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// ResearchProviderNames returns every registered deep-research provider name.
func (r *Registry) ResearchProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.research))
	for n := range r.research {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Generate tries every registered provider in score order until one
// succeeds, mirroring the teacher's providerRegistryLLMClient.Complete
// fallback-chain behavior.
func (r *Registry) Generate(ctx context.Context, prompt, modelID string, maxTokens int, temperature float64, timeout time.Duration) (string, Usage, error) {
	for _, name := range r.OrderedByScore() {
		p, ok := r.Get(name)
		if !ok {
			continue
		}
		text, usage, err := p.Generate(ctx, prompt, modelID, maxTokens, temperature, timeout)
		if err != nil {
			r.logger.WithError(err).WithField("provider", name).Warn("llm provider failed, trying next")
			continue
		}
		return text, usage, nil
	}
	return "", Usage{}, errors.New("all llm providers failed or none registered")
}

// Complete implements the simpler LLMClient shape
// (internal/conversation.LLMClient) some ambient components expect.
func (r *Registry) Complete(ctx context.Context, prompt string, maxTokens int) (string, int, error) {
	text, usage, err := r.Generate(ctx, prompt, "", maxTokens, 0.2, 20*time.Second)
	if err != nil {
		return "", 0, err
	}
	return text, usage.CompletionTokens, nil
}

// StaticProvider is a deterministic Provider used by tests and as a
// heuristic fallback when no real LLM is configured — it never calls out to
// a network, matching the teacher's preference for fast, hermetic unit
// tests (internal/rag/*_test.go mock patterns).
type StaticProvider struct {
	ProviderName string
	Respond      func(prompt string) string
}

func (s *StaticProvider) Name() string { return s.ProviderName }

func (s *StaticProvider) Generate(ctx context.Context, prompt, modelID string, maxTokens int, temperature float64, timeout time.Duration) (string, Usage, error) {
	if s.Respond == nil {
		return "", Usage{}, fmt.Errorf("%s: no responder configured", s.ProviderName)
	}
	text := s.Respond(prompt)
	return text, Usage{PromptTokens: len(prompt) / 4, CompletionTokens: len(text) / 4}, nil
}

func (s *StaticProvider) Health(ctx context.Context) error { return nil }
