package tracing

import (
	"sync"
	"time"

	"legalrag/internal/ragcore"

	"github.com/graphql-go/graphql"
)

// Store is the in-memory, process-scoped holder of completed traces this
// package's GraphQL schema reads from. It is deliberately not a sink: traces
// land here after Sink.Append already ran, as a short-lived introspection
// cache, not the system of record.
type Store struct {
	mu     sync.RWMutex
	traces map[string]Record
	order  []string
	max    int
}

// NewStore builds a Store retaining at most maxEntries most-recently-put
// records, evicting the oldest once full.
func NewStore(maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = 500
	}
	return &Store{traces: make(map[string]Record), max: maxEntries}
}

// Put records trace for later GraphQL introspection.
func (s *Store) Put(trace *ragcore.Trace) {
	rec := NewRecord(trace, time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.traces[rec.RequestID]; !exists {
		s.order = append(s.order, rec.RequestID)
	}
	s.traces[rec.RequestID] = rec
	for len(s.order) > s.max {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.traces, oldest)
	}
}

func (s *Store) get(requestID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.traces[requestID]
	return rec, ok
}

func (s *Store) list() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.traces[id])
	}
	return out
}

// Schema is a read-only GraphQL introspection surface over completed
// pipeline traces (spec §4.12 domain stack), grounded on the teacher's
// graphql-go wiring (internal/graphql/schema.go's InitSchema/QueryType/
// ExecuteQuery pattern), trimmed to query-only since nothing in this core
// should be mutable from a trace-inspection API.
type Schema struct {
	store     *Store
	graphql   graphql.Schema
	queryType *graphql.Object
}

var stageEventType = graphql.NewObject(graphql.ObjectConfig{
	Name: "StageEvent",
	Fields: graphql.Fields{
		"stage":      &graphql.Field{Type: graphql.String},
		"durationMs": &graphql.Field{Type: graphql.Float, Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			ev := p.Source.(ragcore.StageEvent)
			return float64(ev.Duration.Milliseconds()), nil
		}},
		"error":    &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) { return p.Source.(ragcore.StageEvent).Err, nil }},
		"timedOut": &graphql.Field{Type: graphql.Boolean, Resolve: func(p graphql.ResolveParams) (interface{}, error) { return p.Source.(ragcore.StageEvent).TimedOut, nil }},
	},
})

var attributionType = graphql.NewObject(graphql.ObjectConfig{
	Name: "AttributionEntry",
	Fields: graphql.Fields{
		"chunkId":       &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) { return p.Source.(ragcore.AttributionEntry).ChunkID, nil }},
		"score":         &graphql.Field{Type: graphql.Float, Resolve: func(p graphql.ResolveParams) (interface{}, error) { return p.Source.(ragcore.AttributionEntry).Score, nil }},
		"dataset":       &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) { return p.Source.(ragcore.AttributionEntry).Dataset, nil }},
		"rank":          &graphql.Field{Type: graphql.Int, Resolve: func(p graphql.ResolveParams) (interface{}, error) { return p.Source.(ragcore.AttributionEntry).Rank, nil }},
		"evidenceLevel": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) { return string(p.Source.(ragcore.AttributionEntry).EvidenceLevel), nil }},
	},
})

var traceType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Trace",
	Fields: graphql.Fields{
		"requestId":      &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) { return p.Source.(Record).RequestID, nil }},
		"queryOriginal":  &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) { return p.Source.(Record).QueryOriginal, nil }},
		"queryRewritten": &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) { return p.Source.(Record).QueryRewritten, nil }},
		"evidenceLevel":  &graphql.Field{Type: graphql.String, Resolve: func(p graphql.ResolveParams) (interface{}, error) { return string(p.Source.(Record).EvidenceLevel), nil }},
		"events": &graphql.Field{Type: graphql.NewList(stageEventType), Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return p.Source.(Record).Events, nil
		}},
		"attribution": &graphql.Field{Type: graphql.NewList(attributionType), Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return p.Source.(Record).Attribution, nil
		}},
	},
})

// NewSchema builds a query-only GraphQL schema reading from store.
func NewSchema(store *Store) (*Schema, error) {
	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"trace": &graphql.Field{
				Type: traceType,
				Args: graphql.FieldConfigArgument{
					"requestId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					requestID, _ := p.Args["requestId"].(string)
					rec, ok := store.get(requestID)
					if !ok {
						return nil, nil
					}
					return rec, nil
				},
			},
			"traces": &graphql.Field{
				Type: graphql.NewList(traceType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return store.list(), nil
				},
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
	if err != nil {
		return nil, err
	}
	return &Schema{store: store, graphql: schema, queryType: queryType}, nil
}

// Execute runs a GraphQL query string against the schema.
func (s *Schema) Execute(query string, variables map[string]interface{}) *graphql.Result {
	return graphql.Do(graphql.Params{Schema: s.graphql, RequestString: query, VariableValues: variables})
}
