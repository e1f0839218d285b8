// Package budget implements the per-request Budget Meter: cumulative LLM
// calls, output tokens and wall time, checked against hard caps and
// soft-warn thresholds configured at startup (spec §3 Budget Meter, §7
// BudgetExceeded, §8 property 4).
package budget

import (
	"sync/atomic"
	"time"

	"legalrag/internal/ragcore"

	"github.com/prometheus/client_golang/prometheus"
)

// Limits are read once from the immutable Config snapshot at startup.
type Limits struct {
	MaxLLMCallsPerRequest int
	MaxTokensPerRequest   int64
	MaxWallTime           time.Duration
	SoftWarnLLMCalls      int
	SoftWarnTokens        int64
}

// DefaultLimits mirrors the teacher's env-driven defaults pattern
// (internal/config.ServiceEndpoint) applied to budget thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxLLMCallsPerRequest: 12,
		MaxTokensPerRequest:   32000,
		MaxWallTime:           30 * time.Second,
		SoftWarnLLMCalls:      8,
		SoftWarnTokens:        20000,
	}
}

// Meter tracks cumulative cost for a single request. All mutating methods
// are safe for concurrent use since multiple stages (lexical, vector, graph,
// CogGRAG leaves) can spend budget concurrently.
type Meter struct {
	limits    Limits
	startedAt time.Time

	llmCalls     int64
	outputTokens int64

	metrics *metrics
}

// NewMeter creates a Meter bound to limits, starting its wall-clock now.
func NewMeter(limits Limits) *Meter {
	return &Meter{limits: limits, startedAt: time.Now(), metrics: globalMetrics}
}

// ChargeLLMCall records one LLM call and its output token usage. It returns
// a *ragcore.CoreError of kind ErrBudgetExceeded if this charge pushes either
// counter past its hard cap; the charge is still recorded (the caller must
// stop making further calls, the spend already happened).
func (m *Meter) ChargeLLMCall(outputTokens int) error {
	calls := atomic.AddInt64(&m.llmCalls, 1)
	tokens := atomic.AddInt64(&m.outputTokens, int64(outputTokens))
	m.metrics.llmCalls.Inc()
	m.metrics.outputTokens.Add(float64(outputTokens))

	if int(calls) > m.limits.MaxLLMCallsPerRequest {
		return ragcore.NewCoreError(ragcore.ErrBudgetExceeded, "max_llm_calls_per_request exceeded", nil)
	}
	if tokens > m.limits.MaxTokensPerRequest {
		return ragcore.NewCoreError(ragcore.ErrBudgetExceeded, "max_tokens_per_request exceeded", nil)
	}
	return nil
}

// CheckWallTime returns a BudgetExceeded error once the request has run past
// its configured hard deadline.
func (m *Meter) CheckWallTime() error {
	if m.limits.MaxWallTime > 0 && time.Since(m.startedAt) > m.limits.MaxWallTime {
		return ragcore.NewCoreError(ragcore.ErrBudgetExceeded, "request wall time exceeded", nil)
	}
	return nil
}

// IsSoftWarn reports whether either counter has crossed its soft-warn
// threshold, without being a hard failure — callers use this to decide
// whether to skip further optional expansion (spec §4.6 budget-skip event).
func (m *Meter) IsSoftWarn() bool {
	return int(atomic.LoadInt64(&m.llmCalls)) >= m.limits.SoftWarnLLMCalls ||
		atomic.LoadInt64(&m.outputTokens) >= m.limits.SoftWarnTokens
}

// LLMCalls returns the cumulative number of LLM calls charged so far.
func (m *Meter) LLMCalls() int64 { return atomic.LoadInt64(&m.llmCalls) }

// OutputTokens returns the cumulative output tokens charged so far.
func (m *Meter) OutputTokens() int64 { return atomic.LoadInt64(&m.outputTokens) }

// Elapsed returns the wall time spent on this request so far.
func (m *Meter) Elapsed() time.Duration { return time.Since(m.startedAt) }

type metrics struct {
	llmCalls     prometheus.Counter
	outputTokens prometheus.Counter
	exceeded     prometheus.Counter
}

var globalMetrics = newMetrics()

func newMetrics() *metrics {
	m := &metrics{
		llmCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "legalrag",
			Subsystem: "budget",
			Name:      "llm_calls_total",
			Help:      "Cumulative LLM calls charged across all requests.",
		}),
		outputTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "legalrag",
			Subsystem: "budget",
			Name:      "output_tokens_total",
			Help:      "Cumulative LLM output tokens charged across all requests.",
		}),
		exceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "legalrag",
			Subsystem: "budget",
			Name:      "exceeded_total",
			Help:      "Number of requests aborted with BudgetExceeded.",
		}),
	}
	prometheus.MustRegister(m.llmCalls, m.outputTokens, m.exceeded)
	return m
}

// RecordExceeded increments the exceeded-request counter; call this once
// per request when a BudgetExceeded error is returned to the caller.
func RecordExceeded() {
	globalMetrics.exceeded.Inc()
}
