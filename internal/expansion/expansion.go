// Package expansion implements Query Expansion (spec §4.6): rewrite, HyDE
// hypothetical-document generation, and multi-query paraphrase variants,
// each cacheable with TTL and budget-gated against the request's Budget
// Meter. Grounded on original_source/apps/api/app/services/query_expansion.py
// (QueryExpansionService), restyled in the teacher's provider/config idiom.
package expansion

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"legalrag/internal/budget"
	"legalrag/internal/llmprovider"
	"legalrag/internal/ragcore"

	"github.com/sirupsen/logrus"
)

// Config controls HyDE and multi-query generation, mirroring
// QueryExpansionConfig's field names and defaults.
type Config struct {
	HyDEEnabled     bool
	HyDEModel       string
	HyDEMaxTokens   int
	HyDETemperature float64

	MultiQueryEnabled     bool
	MultiQueryModel       string
	MultiQueryCount       int
	MultiQueryMaxTokens   int
	MultiQueryTemperature float64

	CacheTTL      time.Duration
	CacheMaxItems int

	GenerateTimeout time.Duration
}

// DefaultConfig mirrors QueryExpansionConfig's from_env defaults.
func DefaultConfig() Config {
	return Config{
		HyDEEnabled:     true,
		HyDEModel:       "gpt-4o",
		HyDEMaxTokens:   500,
		HyDETemperature: 0.3,

		MultiQueryEnabled:     true,
		MultiQueryModel:       "gpt-4o",
		MultiQueryCount:       4,
		MultiQueryMaxTokens:   300,
		MultiQueryTemperature: 0.5,

		CacheTTL:      time.Hour,
		CacheMaxItems: 5000,

		GenerateTimeout: 10 * time.Second,
	}
}

// Result is the expand() contract's output: expand(query, history?, summary?)
// → { rewritten?, hypothetical?, variants: [text] }.
type Result struct {
	Rewritten     string
	Hypothetical  string
	Variants      []string
	BudgetSkipped bool
}

const (
	hydeLegalPrompt = "Você é um especialista jurídico brasileiro. Dada a pergunta abaixo, escreva um documento hipotético que responderia perfeitamente a essa pergunta.\n\n" +
		"O documento deve:\n" +
		"- Ser escrito em português jurídico formal\n" +
		"- Conter terminologia jurídica precisa (artigos de lei, jurisprudência, doutrina)\n" +
		"- Ter entre 6-10 sentenças\n" +
		"- Ser factual e objetivo\n\n" +
		"Pergunta: %s\n\nDocumento hipotético:"

	multiQueryLegalPrompt = "Você é um especialista em recuperação de informação jurídica. Dada a pergunta original, gere %d variantes de busca que capturem diferentes aspectos da mesma pergunta.\n\n" +
		"Regras:\n" +
		"- Cada variante deve ser uma reformulação ou expansão da pergunta original\n" +
		"- Cada variante em uma linha separada, sem numeração\n\n" +
		"Pergunta original: %s\n\nVariantes de busca:"

	rewriteLegalPrompt = "Reescreva a pergunta abaixo como uma consulta de busca otimizada para um sistema RAG jurídico, mantendo os termos jurídicos essenciais e expandindo siglas se necessário.\n\n" +
		"Pergunta: %s\n\nConsulta otimizada:"
)

// legalAbbreviations expands the closed list of Brazilian legal acronyms the
// heuristic fallback recognizes, grounded on
// QueryExpansionService._expand_legal_abbreviations.
var legalAbbreviations = []struct {
	pattern *regexp.Regexp
	full    string
}{
	{regexp.MustCompile(`(?i)\bSTF\b`), "Supremo Tribunal Federal"},
	{regexp.MustCompile(`(?i)\bSTJ\b`), "Superior Tribunal de Justiça"},
	{regexp.MustCompile(`(?i)\bTST\b`), "Tribunal Superior do Trabalho"},
	{regexp.MustCompile(`(?i)\bCPC\b`), "Código de Processo Civil"},
	{regexp.MustCompile(`(?i)\bCPP\b`), "Código de Processo Penal"},
	{regexp.MustCompile(`(?i)\bCLT\b`), "Consolidação das Leis do Trabalho"},
	{regexp.MustCompile(`(?i)\bCF\b`), "Constituição Federal"},
	{regexp.MustCompile(`(?i)\bCDC\b`), "Código de Defesa do Consumidor"},
	{regexp.MustCompile(`(?i)\bOAB\b`), "Ordem dos Advogados do Brasil"},
}

var stopwords = map[string]bool{
	"o": true, "a": true, "os": true, "as": true, "de": true, "da": true, "do": true,
	"das": true, "dos": true, "um": true, "uma": true, "e": true, "que": true,
	"em": true, "para": true, "com": true, "por": true, "se": true, "é": true,
}

var tokenSplit = regexp.MustCompile(`[\s,;:()\[\]{}]+`)

// Expander implements the expand() contract over a Generate-capable
// provider, budget-gating every LLM call and caching results by normalized
// input.
type Expander struct {
	provider llmprovider.Provider
	cfg      Config
	cache    *ttlCache
	logger   *logrus.Logger
}

// NewExpander builds an Expander. provider may be nil, in which case every
// expansion falls back to the heuristic variants (no LLM calls, no budget
// spend).
func NewExpander(provider llmprovider.Provider, cfg Config, logger *logrus.Logger) *Expander {
	if logger == nil {
		logger = logrus.New()
	}
	return &Expander{
		provider: provider,
		cfg:      cfg,
		cache:    newTTLCache(cfg.CacheMaxItems, cfg.CacheTTL),
		logger:   logger,
	}
}

// Expand runs rewrite, HyDE and multi-query generation for query, skipping
// any LLM-backed step once meter reports soft-warn and skipping all of them
// once a hard budget cap has already been exceeded, recording a
// budget-skip stage event on trace in that case (spec §4.6).
func (e *Expander) Expand(ctx context.Context, query string, history, summary string, meter *budget.Meter, trace *ragcore.Trace) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Variants: nil}
	}

	if meter != nil && meter.IsSoftWarn() {
		if trace != nil {
			trace.RecordStage(ragcore.StageEvent{
				Stage:     "query_expansion",
				StartedAt: time.Now(),
				Output:    "budget_skip",
			})
		}
		return Result{Variants: e.heuristicVariants(query, e.variantCount()), BudgetSkipped: true}
	}

	result := Result{}

	if e.cfg.HyDEEnabled {
		result.Hypothetical = e.hypotheticalDocument(ctx, query, meter)
	}

	result.Variants = e.queryVariants(ctx, query, meter)
	result.Rewritten = e.rewrite(ctx, query, meter)

	return result
}

func (e *Expander) variantCount() int {
	if e.cfg.MultiQueryCount > 0 {
		return e.cfg.MultiQueryCount
	}
	return 4
}

// hypotheticalDocument generates (or fetches cached) a HyDE hypothetical
// document; an empty string on failure signals the caller to fall back to
// the original query for semantic search.
func (e *Expander) hypotheticalDocument(ctx context.Context, query string, meter *budget.Meter) string {
	if cached, ok := e.cache.get("hyde", query); ok {
		return cached.Hypothetical
	}
	if e.provider == nil {
		return ""
	}
	if err := e.chargeBudget(meter, e.cfg.HyDEMaxTokens); err != nil {
		e.logger.WithError(err).Debug("hyde generation skipped, budget exceeded")
		return ""
	}

	prompt := sprintf(hydeLegalPrompt, query)
	text, _, err := e.provider.Generate(ctx, prompt, e.cfg.HyDEModel, e.cfg.HyDEMaxTokens, e.cfg.HyDETemperature, e.generateTimeout())
	if err != nil {
		e.logger.WithError(err).Warn("hyde generation failed")
		return ""
	}
	text = strings.TrimSpace(text)
	if text != "" {
		e.cache.set("hyde", query, Result{Hypothetical: text})
	}
	return text
}

// queryVariants generates up to MultiQueryCount paraphrases (including the
// original query as element zero), falling back to heuristic variants when
// the LLM is unavailable, fails, or under-produces.
func (e *Expander) queryVariants(ctx context.Context, query string, meter *budget.Meter) []string {
	count := e.variantCount()
	variants := []string{query}
	if count <= 1 {
		return variants
	}

	if cached, ok := e.cache.get("multi_query", query+":"+strconv.Itoa(count)); ok {
		return cached.Variants
	}

	if e.provider != nil {
		if err := e.chargeBudget(meter, e.cfg.MultiQueryMaxTokens); err == nil {
			prompt := sprintf(multiQueryLegalPrompt, count-1, query)
			text, _, err := e.provider.Generate(ctx, prompt, e.cfg.MultiQueryModel, e.cfg.MultiQueryMaxTokens, e.cfg.MultiQueryTemperature, e.generateTimeout())
			if err != nil {
				e.logger.WithError(err).Warn("multi-query generation failed")
			} else {
				for _, line := range strings.Split(text, "\n") {
					cleaned := strings.TrimSpace(stripListPrefix(line))
					if cleaned != "" && !strings.EqualFold(cleaned, query) {
						variants = append(variants, cleaned)
						if len(variants) >= count {
							break
						}
					}
				}
			}
		} else {
			e.logger.WithError(err).Debug("multi-query generation skipped, budget exceeded")
		}
	}

	if len(variants) < count {
		for _, v := range e.heuristicVariants(query, count-len(variants)) {
			variants = append(variants, v)
		}
	}

	variants = dedupeCaseInsensitive(variants)
	if len(variants) > count {
		variants = variants[:count]
	}

	e.cache.set("multi_query", query+":"+strconv.Itoa(count), Result{Variants: variants})
	return variants
}

func (e *Expander) rewrite(ctx context.Context, query string, meter *budget.Meter) string {
	if cached, ok := e.cache.get("rewrite", query); ok {
		return cached.Rewritten
	}
	if e.provider == nil {
		return ""
	}
	if err := e.chargeBudget(meter, 100); err != nil {
		e.logger.WithError(err).Debug("rewrite skipped, budget exceeded")
		return ""
	}
	prompt := sprintf(rewriteLegalPrompt, query)
	text, _, err := e.provider.Generate(ctx, prompt, e.cfg.MultiQueryModel, 100, 0.2, e.generateTimeout())
	if err != nil {
		e.logger.WithError(err).Warn("rewrite generation failed")
		return ""
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = query
	}
	e.cache.set("rewrite", query, Result{Rewritten: text})
	return text
}

// heuristicVariants produces up to n variants without any LLM call: keyword
// extraction, question-mark stripping, abbreviation expansion, and a
// current-year suffix, per spec §4.6's heuristic-fallback list.
func (e *Expander) heuristicVariants(query string, n int) []string {
	if n <= 0 {
		return nil
	}
	var variants []string

	if keywords := keywordOnly(query); keywords != "" && !strings.EqualFold(keywords, query) {
		variants = append(variants, keywords)
	}
	if strings.Contains(query, "?") {
		noQuestion := strings.TrimSpace(strings.ReplaceAll(query, "?", ""))
		if !strings.EqualFold(noQuestion, query) {
			variants = append(variants, noQuestion)
		}
	}
	if expanded := expandLegalAbbreviations(query); !strings.EqualFold(expanded, query) {
		variants = append(variants, expanded)
	}
	variants = append(variants, query+" "+strconv.Itoa(time.Now().Year()))

	if len(variants) > n {
		variants = variants[:n]
	}
	return variants
}

func keywordOnly(query string) string {
	tokens := tokenSplit.Split(query, -1)
	var kept []string
	for _, t := range tokens {
		if len([]rune(t)) >= 4 && !stopwords[strings.ToLower(t)] {
			kept = append(kept, t)
		}
		if len(kept) >= 8 {
			break
		}
	}
	return strings.Join(kept, " ")
}

func expandLegalAbbreviations(text string) string {
	result := text
	for _, a := range legalAbbreviations {
		result = a.pattern.ReplaceAllString(result, a.full)
	}
	return result
}

func stripListPrefix(line string) string {
	trimmed := strings.TrimLeft(line, "0123456789.-*)] \t")
	if trimmed == "" {
		return strings.TrimSpace(line)
	}
	return strings.TrimSpace(trimmed)
}

func dedupeCaseInsensitive(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func (e *Expander) chargeBudget(meter *budget.Meter, estimatedTokens int) error {
	if meter == nil {
		return nil
	}
	return meter.ChargeLLMCall(estimatedTokens)
}

func (e *Expander) generateTimeout() time.Duration {
	if e.cfg.GenerateTimeout > 0 {
		return e.cfg.GenerateTimeout
	}
	return 10 * time.Second
}

// ClearCache empties the expansion cache; exposed for tests and ops tooling.
func (e *Expander) ClearCache() {
	e.cache.clear()
}

func sprintf(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...)
}
