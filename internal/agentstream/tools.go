package agentstream

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"legalrag/internal/agentic"
	"legalrag/internal/llmprovider"
	"legalrag/internal/orchestrator"
	"legalrag/internal/ragcore"
)

// searcherFunc is the orchestrator capability this package's search_rag_*
// tools depend on, narrowed to a function type so tests can stub it without
// building an orchestrator; the engine's closure supplies its own
// *budget.Meter when it calls Orchestrator.Search.
type searcherFunc func(ctx context.Context, req orchestrator.Request) (*orchestrator.PipelineResult, error)

func argString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func resultsToSources(provider string, results []ragcore.RetrievalResult) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		out = append(out, Source{
			Provider: provider,
			ChunkID:  r.Chunk.ID,
			Title:    r.Chunk.Metadata.Title,
			Score:    r.FusedScore,
		})
	}
	return out
}

func searchRAGTool(name, providerTag string, local bool, search searcherFunc, emit func(Event)) agentic.Tool {
	return agentic.Tool{
		Name:        name,
		Description: "Search the internal legal RAG index (" + providerTag + " scope)",
		Parameters: map[string]interface{}{
			"query":   "string, required",
			"tenant":  "string, required",
			"case_id": "string, optional (required for local scope)",
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			query := argString(args, "query")
			scope := ragcore.ScopeContext{
				Tenant:       argString(args, "tenant"),
				CaseID:       argString(args, "case_id"),
				GroupIDs:     argStringSlice(args, "group_ids"),
				EnableGlobal: !local,
				EnableLocal:  local,
			}
			req := orchestrator.Request{Query: query, TopK: 8, Scope: scope, Options: orchestrator.DefaultOptions()}
			result, err := search(ctx, req)
			if err != nil {
				return nil, err
			}
			sources := resultsToSources(providerTag, result.Results)
			for _, s := range sources {
				emit(Event{Kind: EventProviderSource, ToolName: name, Data: map[string]interface{}{"source": s}})
			}
			return map[string]interface{}{
				"bundle":         result.CompressedBundle,
				"evidence_level": string(result.EvidenceLevel),
				"sources":        sources,
			}, nil
		},
	}
}

func researchTool(name string, provider llmprovider.DeepResearchProvider, emit func(Event)) agentic.Tool {
	return agentic.Tool{
		Name:        name,
		Description: "Query the " + provider.Name() + " deep-research provider",
		Parameters:  map[string]interface{}{"query": "string, required"},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			query := argString(args, "query")
			options := make(map[string]interface{}, len(args))
			for k, v := range args {
				if k != "query" {
					options[k] = v
				}
			}
			res, err := provider.Research(ctx, query, options)
			if err != nil {
				return nil, err
			}
			sources := make([]Source, 0, len(res.Sources))
			for _, url := range res.Sources {
				s := Source{Provider: "deep_research", URL: url, Score: 0.5}
				sources = append(sources, s)
				emit(Event{Kind: EventProviderSource, ToolName: name, Data: map[string]interface{}{"source": s}})
			}
			return map[string]interface{}{
				"text":           res.Text,
				"sources":        sources,
				"thinking_steps": res.ThinkingSteps,
			}, nil
		},
	}
}

func analyzeResultsTool() agentic.Tool {
	return agentic.Tool{
		Name:        "analyze_results",
		Description: "De-duplicate and re-rank sources gathered so far across every tool call this iteration",
		Parameters:  map[string]interface{}{"sources": "[]Source, required"},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			raw, _ := args["sources"].([]Source)
			return map[string]interface{}{"ranked": DedupeAndRank(raw)}, nil
		},
	}
}

func askUserTool(emit func(Event)) agentic.Tool {
	return agentic.Tool{
		Name:        "ask_user",
		Description: "Pause the agent loop and request clarification from the user",
		Parameters:  map[string]interface{}{"question": "string, required"},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			question := argString(args, "question")
			emit(Event{Kind: EventAskUser, ToolName: "ask_user", Text: question})
			return map[string]interface{}{"question": question, "awaiting_user": true}, nil
		},
	}
}

func generateStudySectionTool(provider llmprovider.Provider, emit func(Event)) agentic.Tool {
	return agentic.Tool{
		Name:        "generate_study_section",
		Description: "Draft one section of the final study document, streaming tokens as it writes",
		Parameters: map[string]interface{}{
			"topic":   "string, required",
			"context": "string, required evidence bundle to ground the section in",
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			topic := argString(args, "topic")
			evidence := argString(args, "context")
			if provider == nil {
				return map[string]interface{}{"text": ""}, nil
			}
			prompt := fmt.Sprintf("Redija uma seção de estudo jurídico sobre: %s\n\nEvidência disponível:\n%s\n\nCite [ref:...] quando usar a evidência.", topic, evidence)
			text, _, err := provider.Generate(ctx, prompt, "", 1024, 0.3, 0)
			if err != nil {
				return nil, err
			}
			for _, chunk := range chunkWords(text, 8) {
				emit(Event{Kind: EventStudyToken, ToolName: "generate_study_section", Text: chunk})
			}
			return map[string]interface{}{"text": text}, nil
		},
	}
}

func chunkWords(text string, perChunk int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var out []string
	for i := 0; i < len(words); i += perChunk {
		end := i + perChunk
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[i:end], " "))
	}
	return out
}

var refMarkerRe = regexp.MustCompile(`\[(?:ref|path):([^\]]+)\]`)

func verifyCitationsTool() agentic.Tool {
	return agentic.Tool{
		Name:        "verify_citations",
		Description: "Check that every [ref:...]/[path:...] marker in a drafted answer refers to a known chunk id",
		Parameters: map[string]interface{}{
			"text":       "string, required",
			"valid_refs": "[]string, required",
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			text := argString(args, "text")
			valid := make(map[string]bool)
			for _, r := range argStringSlice(args, "valid_refs") {
				valid[r] = true
			}
			var validFound, invalid []string
			seen := make(map[string]bool)
			for _, m := range refMarkerRe.FindAllStringSubmatch(text, -1) {
				ref := strings.TrimSpace(m[1])
				if ref == "" || seen[ref] {
					continue
				}
				seen[ref] = true
				if valid[ref] {
					validFound = append(validFound, ref)
				} else {
					invalid = append(invalid, ref)
				}
			}
			return map[string]interface{}{"valid": validFound, "invalid": invalid}, nil
		},
	}
}
