package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"legalrag/internal/ragcore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace(requestID string) *ragcore.Trace {
	tr := ragcore.NewTrace(requestID, "Art. 319 CPC petição inicial requisitos")
	tr.RecordStage(ragcore.StageEvent{Stage: "fusion", Output: "3 results"})
	tr.SetEvidenceLevel(ragcore.EvidenceStrong)
	tr.SetAttribution([]ragcore.AttributionEntry{
		{ChunkID: "c1", Score: 0.9, Dataset: "statute", Rank: 1, EvidenceLevel: ragcore.EvidenceStrong},
	})
	return tr
}

func TestInitTracerProvider_StageSpanRecordsAttributesAndError(t *testing.T) {
	tp := InitTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := StartStageSpan(context.Background(), "fusion", "req-1")
	require.NotNil(t, ctx)
	EndStageSpan(span, errors.New("boom"))
}

func TestNewRecord_CapturesTraceFields(t *testing.T) {
	tr := sampleTrace("req-1")
	rec := NewRecord(tr, time.Now())
	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, ragcore.EvidenceStrong, rec.EvidenceLevel)
	assert.Len(t, rec.Attribution, 1)
}

func TestMarshalJSONLine_EndsWithNewline(t *testing.T) {
	rec := NewRecord(sampleTrace("req-2"), time.Now())
	line, err := MarshalJSONLine(rec)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), line[len(line)-1])
}

type stubSink struct {
	err   error
	calls int
}

func (s *stubSink) Append(ctx context.Context, trace *ragcore.Trace) error {
	s.calls++
	return s.err
}

func TestFanOut_CallsEverySinkAndReturnsFirstError(t *testing.T) {
	first := &stubSink{err: errors.New("boom")}
	second := &stubSink{}
	f := FanOut{Sinks: []Sink{first, second, nil}}

	err := f.Append(context.Background(), sampleTrace("req-3"))
	require.Error(t, err)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestStore_PutAndGetAndEviction(t *testing.T) {
	store := NewStore(2)
	store.Put(sampleTrace("req-a"))
	store.Put(sampleTrace("req-b"))
	store.Put(sampleTrace("req-c"))

	_, ok := store.get("req-a")
	assert.False(t, ok, "oldest entry should have been evicted")

	rec, ok := store.get("req-c")
	assert.True(t, ok)
	assert.Equal(t, "req-c", rec.RequestID)
}

func TestGraphQLSchema_QueryTraceByRequestID(t *testing.T) {
	store := NewStore(10)
	store.Put(sampleTrace("req-xyz"))

	schema, err := NewSchema(store)
	require.NoError(t, err)

	result := schema.Execute(`{ trace(requestId: "req-xyz") { requestId evidenceLevel attribution { chunkId rank } } }`, nil)
	require.Empty(t, result.Errors)

	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	traceData, ok := data["trace"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "req-xyz", traceData["requestId"])
	assert.Equal(t, "strong", traceData["evidenceLevel"])
}

func TestGraphQLSchema_ListsAllTraces(t *testing.T) {
	store := NewStore(10)
	store.Put(sampleTrace("req-1"))
	store.Put(sampleTrace("req-2"))

	schema, err := NewSchema(store)
	require.NoError(t, err)

	result := schema.Execute(`{ traces { requestId } }`, nil)
	require.Empty(t, result.Errors)

	data := result.Data.(map[string]interface{})
	traces := data["traces"].([]interface{})
	assert.Len(t, traces, 2)
}
