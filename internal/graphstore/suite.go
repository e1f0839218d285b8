package graphstore

import (
	"context"

	"legalrag/internal/ragcore"
)

// SuiteConfig tunes every detector's threshold in one place, mirroring the
// teacher's config-struct-per-component idiom.
type SuiteConfig struct {
	MinComentionWeight    float64
	MinProcessesForActor  int
	MinRepresented        int
	TopHubs               int
	MaxClusterSize        int
	MinClusterDensity     float64
	TopInfluence          int
	TopBetweenness        int
	MinCommunitySize      int
	MinBehavioralSimilarity float64
	MinTriangles          int
	GraphLoadLimit        int
}

// DefaultSuiteConfig mirrors crag_gate.py's pattern of env-tunable constants
// with conservative defaults baked in.
func DefaultSuiteConfig() SuiteConfig {
	return SuiteConfig{
		MinComentionWeight:      3,
		MinProcessesForActor:    3,
		MinRepresented:          5,
		TopHubs:                 10,
		MaxClusterSize:          8,
		MinClusterDensity:       0.6,
		TopInfluence:            10,
		TopBetweenness:          10,
		MinCommunitySize:        4,
		MinBehavioralSimilarity: 0.7,
		MinTriangles:            2,
		GraphLoadLimit:          5000,
	}
}

// LoadEdges pulls raw typed edges (not aggregated into the adjacency graph)
// for detectors that need edge-type-specific semantics, such as
// representacao_massiva's REPRESENTS edges.
func (s *Store) LoadEdges(ctx context.Context, scope ragcore.ScopeContext, edgeType ragcore.EdgeType, limit int) ([]ragcore.Edge, error) {
	cypher := `
		MATCH (a:Entity)-[r]->(b:Entity)
		WHERE type(r) = $edgeType
		  AND (a.tenant = $tenant OR a.shared = true) AND coalesce(a.sigilo,false) = false
		  AND (b.tenant = $tenant OR b.shared = true) AND coalesce(b.sigilo,false) = false
		RETURN a.id AS fromId, b.id AS toId, coalesce(r.weight, 1.0) AS weight
		LIMIT $limit
	`
	records, err := s.run(ctx, cypher, map[string]any{
		"edgeType": string(edgeType), "tenant": scope.Tenant, "limit": limit,
	})
	if err != nil {
		return nil, err
	}
	edges := make([]ragcore.Edge, 0, len(records))
	for _, rec := range records {
		weight := 1.0
		if v, ok := rec.Get("weight"); ok {
			if f, ok := v.(float64); ok {
				weight = f
			}
		}
		edges = append(edges, ragcore.Edge{
			From: getString(rec, "fromId"), To: getString(rec, "toId"),
			Type: edgeType, Weight: weight,
		})
	}
	return edges, nil
}

// RunSuite loads the scoped graph once and runs every risk-scan detector
// against it, matching the Python service's fixed 12-detector registry
// (spec §4.13). selected, when non-empty, restricts which detector keys run.
func RunSuite(ctx context.Context, store *Store, scope ragcore.ScopeContext, cfg SuiteConfig, selected []string) ([]RiskSignal, error) {
	allEdgeTypes := []ragcore.EdgeType{
		ragcore.EdgeCoMentions, ragcore.EdgeParticipatesIn, ragcore.EdgeRepresents,
	}
	g, err := store.LoadGraph(ctx, scope, allEdgeTypes, cfg.GraphLoadLimit)
	if err != nil {
		return nil, err
	}
	representsEdges, err := store.LoadEdges(ctx, scope, ragcore.EdgeRepresents, cfg.GraphLoadLimit)
	if err != nil {
		return nil, err
	}

	type namedDetector struct {
		key string
		run func() []RiskSignal
	}
	detectors := []namedDetector{
		{"orgao_empresa_comention", func() []RiskSignal { return DetectOrgaoEmpresaComention(g, cfg.MinComentionWeight) }},
		{"comenciona_hotspots", func() []RiskSignal { return DetectComencionaHotspots(g) }},
		{"multi_process_actor", func() []RiskSignal { return DetectMultiProcessActor(g, cfg.MinProcessesForActor) }},
		{"representacao_massiva", func() []RiskSignal { return DetectRepresentacaoMassiva(g, representsEdges, cfg.MinRepresented) }},
		{"process_network_hubs", func() []RiskSignal { return DetectProcessNetworkHubs(g, cfg.TopHubs) }},
		{"connected_risk_clusters", func() []RiskSignal {
			return DetectConnectedRiskClusters(g, cfg.MaxClusterSize, cfg.MinClusterDensity)
		}},
		{"influence_propagation", func() []RiskSignal { return DetectInfluencePropagation(g, cfg.TopInfluence) }},
		{"critical_intermediaries", func() []RiskSignal { return DetectCriticalIntermediaries(g, cfg.TopBetweenness) }},
		{"hidden_communities", func() []RiskSignal { return DetectHiddenCommunities(g, cfg.MinCommunitySize) }},
		{"behavioral_similarity", func() []RiskSignal { return DetectBehavioralSimilarity(g, cfg.MinBehavioralSimilarity) }},
		{"collusion_triangles", func() []RiskSignal { return DetectCollusionTriangles(g, cfg.MinTriangles) }},
		{"structural_vulnerabilities", func() []RiskSignal { return DetectStructuralVulnerabilities(g) }},
	}

	want := make(map[string]bool, len(selected))
	for _, s := range selected {
		want[s] = true
	}

	var signals []RiskSignal
	for _, d := range detectors {
		if len(want) > 0 && !want[d.key] {
			continue
		}
		signals = append(signals, d.run()...)
	}
	return signals, nil
}
