package agentstream

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"legalrag/internal/agentic"
	"legalrag/internal/budget"
	"legalrag/internal/llmprovider"
	"legalrag/internal/orchestrator"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Request is one AgentStream call's input (spec §6: AgentStream(request) →
// stream<Event>).
type Request struct {
	Query       string
	Tenant      string
	CaseID      string
	MaxRounds   int
	GenerateStudy bool
	// Providers, when non-empty, restricts search_<provider> tools to this
	// allow-list of deep-research provider names; every other registered
	// provider's tool is left out of the tool surface entirely, so the
	// decide loop can never call it.
	Providers []string
}

// Engine runs the agentic tool-calling loop over an adapted
// internal/agentic.Workflow graph, emitting a typed event per step.
type Engine struct {
	reasoner  llmprovider.Provider
	writer    llmprovider.Provider
	search    *orchestrator.Orchestrator
	research  *llmprovider.Registry
	meter     *budget.Meter
	logger    *logrus.Logger
}

// NewEngine wires an Engine. reasoner drives the iterate/decide node,
// writer drafts study sections (may be the same provider as reasoner),
// search backs search_rag_global/search_rag_local, research supplies
// search_<provider> tools for every registered deep-research provider.
func NewEngine(reasoner, writer llmprovider.Provider, search *orchestrator.Orchestrator, research *llmprovider.Registry, meter *budget.Meter, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	if meter == nil {
		meter = budget.NewMeter(budget.DefaultLimits())
	}
	return &Engine{reasoner: reasoner, writer: writer, search: search, research: research, meter: meter, logger: logger}
}

// Stream runs req's agent loop in a goroutine and returns a channel of
// events, closed once the loop ends (either normally, via ask_user, or on
// error). The caller drains the channel; Stream never blocks the caller
// beyond building the workflow.
func (e *Engine) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	if req.MaxRounds <= 0 {
		req.MaxRounds = 6
	}
	requestID := uuid.New().String()
	events := make(chan Event, 32)
	emit := func(ev Event) {
		ev.RequestID = requestID
		if ev.Timestamp.IsZero() {
			ev.Timestamp = eventTime()
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	wf, err := e.buildWorkflow(req, emit)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(events)
		_, err := wf.Execute(ctx, &agentic.NodeInput{Query: req.Query})
		if err != nil {
			emit(Event{Kind: EventError, Err: err.Error()})
		}
	}()

	return events, nil
}

// buildWorkflow adapts internal/agentic's graph engine into this package's
// iterate→tool→merge(→study) loop: "iterate" decides the next tool call or
// ends the loop, "tool" executes it and sets NextNode back to "iterate"
// until the reasoner signals completion or MaxRounds is hit.
func (e *Engine) buildWorkflow(req Request, emit func(Event)) (*agentic.Workflow, error) {
	cfg := agentic.DefaultWorkflowConfig()
	// MaxRounds iterate+tool pairs, then the final iterate, merge and study.
	cfg.MaxIterations = req.MaxRounds*2 + 3
	cfg.EnableCheckpoints = false
	wf := agentic.NewWorkflow("agent-stream", "legal research agent loop", cfg, e.logger)

	tools := e.buildTools(req, emit)
	toolByName := make(map[string]agentic.Tool, len(tools))
	for _, t := range tools {
		toolByName[t.Name] = t
	}

	iterate := &agentic.Node{
		ID:   "iterate",
		Name: "iterate",
		Type: agentic.NodeTypeAgent,
		Handler: func(ctx context.Context, state *agentic.WorkflowState, input *agentic.NodeInput) (*agentic.NodeOutput, error) {
			round := roundFromState(state)
			emit(Event{Kind: EventIteration, Iteration: round})

			decision, text := e.decide(ctx, req, state, round, tools)
			emit(Event{Kind: EventThinking, Iteration: round, Text: text})

			if decision.toolName == "" || round >= req.MaxRounds {
				return &agentic.NodeOutput{ShouldEnd: false, NextNode: "merge"}, nil
			}
			state.Variables["__next_tool"] = decision.toolName
			state.Variables["__next_args"] = decision.args
			return &agentic.NodeOutput{NextNode: "tool"}, nil
		},
	}

	toolNode := &agentic.Node{
		ID:   "tool",
		Name: "tool",
		Type: agentic.NodeTypeTool,
		Handler: func(ctx context.Context, state *agentic.WorkflowState, input *agentic.NodeInput) (*agentic.NodeOutput, error) {
			name, _ := state.Variables["__next_tool"].(string)
			args, _ := state.Variables["__next_args"].(map[string]interface{})

			tool, ok := toolByName[name]
			if !ok {
				return &agentic.NodeOutput{NextNode: "iterate"}, nil
			}
			emit(Event{Kind: EventToolCall, ToolName: name, Data: args})
			result, err := tool.Handler(ctx, args)
			if err != nil {
				emit(Event{Kind: EventError, ToolName: name, Err: err.Error()})
				return &agentic.NodeOutput{NextNode: "iterate"}, nil
			}
			emit(Event{Kind: EventToolResult, ToolName: name, Data: asMap(result)})

			if name == "ask_user" {
				return &agentic.NodeOutput{ShouldEnd: true}, nil
			}

			state.Variables["__tool_results"] = appendToolResult(state.Variables["__tool_results"], name, result)
			return &agentic.NodeOutput{NextNode: "iterate"}, nil
		},
	}

	merge := &agentic.Node{
		ID:   "merge",
		Name: "merge",
		Type: agentic.NodeTypeAgent,
		Handler: func(ctx context.Context, state *agentic.WorkflowState, input *agentic.NodeInput) (*agentic.NodeOutput, error) {
			emit(Event{Kind: EventMergeDone})
			if !req.GenerateStudy {
				return &agentic.NodeOutput{ShouldEnd: true}, nil
			}
			return &agentic.NodeOutput{NextNode: "study"}, nil
		},
	}

	study := &agentic.Node{
		ID:   "study",
		Name: "study",
		Type: agentic.NodeTypeAgent,
		Handler: func(ctx context.Context, state *agentic.WorkflowState, input *agentic.NodeInput) (*agentic.NodeOutput, error) {
			section := toolByName["generate_study_section"]
			evidence := bundleToolResults(state.Variables["__tool_results"])
			_, err := section.Handler(ctx, map[string]interface{}{"topic": req.Query, "context": evidence})
			if err != nil {
				emit(Event{Kind: EventError, ToolName: "generate_study_section", Err: err.Error()})
			}
			emit(Event{Kind: EventStudyDone})
			return &agentic.NodeOutput{ShouldEnd: true}, nil
		},
	}

	for _, n := range []*agentic.Node{iterate, toolNode, merge, study} {
		if err := wf.AddNode(n); err != nil {
			return nil, err
		}
	}
	if err := wf.SetEntryPoint("iterate"); err != nil {
		return nil, err
	}
	// Termination is driven entirely by NodeOutput.ShouldEnd from the merge
	// and study handlers; no node is registered as an EndNode, since
	// Workflow.executeLoop treats reaching one as an immediate stop
	// regardless of NextNode, which would cut the iterate→tool loop short.
	return wf, nil
}

func roundFromState(state *agentic.WorkflowState) int {
	count := 0
	for _, h := range state.History {
		if h.NodeName == "iterate" {
			count++
		}
	}
	return count
}

type decision struct {
	toolName string
	args     map[string]interface{}
}

var decideLineRe = regexp.MustCompile(`(?m)^TOOL:\s*(\S+)\s*$`)
var decideArgsRe = regexp.MustCompile(`(?m)^ARGS:\s*(\{.*\})\s*$`)

const decidePrompt = `Você é o orquestrador de um agente de pesquisa jurídica.
Rodada atual: %d de no máximo %d.

Pergunta do usuário: %s

Ferramentas disponíveis:
%s

Resultados já coletados nesta sessão:
%s

Escolha a próxima ferramenta a chamar, ou "none" se já há evidência
suficiente para encerrar. Responda em exatamente duas linhas:
TOOL: <nome_da_ferramenta ou none>
ARGS: <objeto JSON com os argumentos da ferramenta, ou {} se nenhum>`

// decide drives the iterate node's tool-selection policy from e.reasoner
// when one is configured, prompting it with the registered tool surface
// (already filtered to req.Providers, see buildTools) and parsing its
// TOOL/ARGS response. Falls back to a fixed round-0 search_rag_global then
// stop heuristic when no reasoner is wired or the response doesn't parse,
// so the loop still makes forward progress in that configuration.
func (e *Engine) decide(ctx context.Context, req Request, state *agentic.WorkflowState, round int, tools []agentic.Tool) (decision, string) {
	if e.reasoner == nil {
		return e.fallbackDecide(req, round)
	}

	prompt := fmt.Sprintf(decidePrompt, round, req.MaxRounds, req.Query, describeTools(tools), summarizeToolResults(state.Variables["__tool_results"]))
	text, usage, err := e.reasoner.Generate(ctx, prompt, "", 512, 0.0, 0)
	if e.meter != nil {
		_ = e.meter.ChargeLLMCall(usage.CompletionTokens)
	}
	if err != nil || text == "" {
		return e.fallbackDecide(req, round)
	}

	toolMatch := decideLineRe.FindStringSubmatch(text)
	if toolMatch == nil {
		return e.fallbackDecide(req, round)
	}
	toolName := strings.TrimSpace(toolMatch[1])
	if toolName == "" || strings.EqualFold(toolName, "none") {
		return decision{}, "reasoner judged the gathered evidence sufficient, proceeding to merge"
	}
	if !hasTool(tools, toolName) {
		return e.fallbackDecide(req, round)
	}

	args := map[string]interface{}{}
	if argsMatch := decideArgsRe.FindStringSubmatch(text); argsMatch != nil {
		_ = json.Unmarshal([]byte(argsMatch[1]), &args)
	}
	if _, ok := args["query"]; !ok {
		args["query"] = req.Query
	}
	if _, ok := args["tenant"]; !ok {
		args["tenant"] = req.Tenant
	}
	if _, ok := args["case_id"]; !ok {
		args["case_id"] = req.CaseID
	}
	return decision{toolName: toolName, args: args}, fmt.Sprintf("reasoner selected %s", toolName)
}

// fallbackDecide is the deterministic policy used when no reasoner is
// configured or its output can't be parsed: ground the answer once via
// search_rag_global, then stop.
func (e *Engine) fallbackDecide(req Request, round int) (decision, string) {
	if round == 0 {
		return decision{toolName: "search_rag_global", args: map[string]interface{}{
			"query": req.Query, "tenant": req.Tenant, "case_id": req.CaseID,
		}}, "gathering initial evidence from the global RAG index"
	}
	return decision{}, "sufficient evidence gathered, proceeding to merge"
}

func describeTools(tools []agentic.Tool) string {
	var lines []string
	for _, t := range tools {
		lines = append(lines, fmt.Sprintf("- %s: %s", t.Name, t.Description))
	}
	return strings.Join(lines, "\n")
}

func hasTool(tools []agentic.Tool, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

func summarizeToolResults(results interface{}) string {
	list, _ := results.([]map[string]interface{})
	if len(list) == 0 {
		return "(nenhum resultado ainda)"
	}
	var names []string
	for _, r := range list {
		if name, ok := r["tool"].(string); ok {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

func (e *Engine) buildTools(req Request, emit func(Event)) []agentic.Tool {
	var tools []agentic.Tool
	if e.search != nil {
		search := func(ctx context.Context, r orchestrator.Request) (*orchestrator.PipelineResult, error) {
			return e.search.Search(ctx, r, e.meter)
		}
		tools = append(tools, searchRAGTool("search_rag_global", "rag_global", false, search, emit))
		tools = append(tools, searchRAGTool("search_rag_local", "rag_local", true, search, emit))
	}
	if e.research != nil {
		allowed := toSet(req.Providers)
		for _, name := range e.research.ResearchProviderNames() {
			if len(allowed) > 0 && !allowed[name] {
				continue
			}
			provider, ok := e.research.GetResearch(name)
			if !ok {
				continue
			}
			tools = append(tools, researchTool("search_"+name, provider, emit))
		}
	}
	tools = append(tools, analyzeResultsTool(), askUserTool(emit), generateStudySectionTool(e.writer, emit), verifyCitationsTool())
	return tools
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"result": v}
}

func appendToolResult(existing interface{}, name string, result interface{}) []map[string]interface{} {
	list, _ := existing.([]map[string]interface{})
	return append(list, map[string]interface{}{"tool": name, "result": asMap(result)})
}

func bundleToolResults(results interface{}) string {
	list, _ := results.([]map[string]interface{})
	out := ""
	for _, r := range list {
		resultMap, ok := r["result"].(map[string]interface{})
		if !ok {
			continue
		}
		if bundle, ok := resultMap["bundle"].(string); ok && bundle != "" {
			out += bundle + "\n\n"
		}
	}
	return out
}
