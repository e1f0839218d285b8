package graphstore

import (
	"context"
	"fmt"
	"math"
	"sort"

	"legalrag/internal/ragcore"
)

// RiskSignal is one finding from a risk-scan detector.
type RiskSignal struct {
	DetectorKey string         `json:"detector_key"`
	Label       string         `json:"label"`
	Score       float64        `json:"score"`
	Entities    []string       `json:"entities"`
	Evidence    map[string]any `json:"evidence,omitempty"`
}

// Graph is an in-memory undirected adjacency snapshot built from the store's
// verified-layer edges, scoped to a single tenant/case so every detector
// below only ever sees entities that scope already admits.
type Graph struct {
	Nodes map[string]ragcore.Entity
	adj   map[string]map[string]float64 // node -> neighbor -> edge weight
}

func newGraph() *Graph {
	return &Graph{Nodes: make(map[string]ragcore.Entity), adj: make(map[string]map[string]float64)}
}

func (g *Graph) addEdge(e ragcore.Edge, a, b ragcore.Entity) {
	g.Nodes[a.ID] = a
	g.Nodes[b.ID] = b
	if g.adj[a.ID] == nil {
		g.adj[a.ID] = make(map[string]float64)
	}
	if g.adj[b.ID] == nil {
		g.adj[b.ID] = make(map[string]float64)
	}
	w := e.Weight
	if w == 0 {
		w = 1
	}
	g.adj[a.ID][b.ID] += w
	g.adj[b.ID][a.ID] += w
}

func (g *Graph) neighbors(id string) map[string]float64 { return g.adj[id] }

func (g *Graph) degree(id string) int { return len(g.adj[id]) }

func (g *Graph) nodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadGraph pulls the verified (and, if allowed, candidate) edge layer for a
// tenant/case into memory so the detectors below can run in-process. This
// bounds the scan to whatever scope admits, same as the retrievers.
func (s *Store) LoadGraph(ctx context.Context, scope ragcore.ScopeContext, edgeTypes []ragcore.EdgeType, limit int) (*Graph, error) {
	layers := []string{"verified"}
	if scope.AllowCandidateEdges {
		layers = append(layers, "candidate")
	}
	types := make([]string, 0, len(edgeTypes))
	for _, t := range edgeTypes {
		types = append(types, string(t))
	}

	cypher := `
		MATCH (a:Entity)-[r]-(b:Entity)
		WHERE (a.tenant = $tenant OR a.shared = true) AND coalesce(a.sigilo,false) = false
		  AND (b.tenant = $tenant OR b.shared = true) AND coalesce(b.sigilo,false) = false
		  AND type(r) IN $types AND r.layer IN $layers
		RETURN a.id AS aId, a.name AS aName, a.type AS aType,
		       b.id AS bId, b.name AS bName, b.type AS bType,
		       coalesce(r.weight, 1.0) AS weight
		LIMIT $limit
	`
	records, err := s.run(ctx, cypher, map[string]any{
		"tenant": scope.Tenant, "types": types, "layers": layers, "limit": limit,
	})
	if err != nil {
		return nil, err
	}

	g := newGraph()
	for _, rec := range records {
		a := ragcore.Entity{ID: getString(rec, "aId"), Name: getString(rec, "aName"), Type: ragcore.EntityType(getString(rec, "aType"))}
		b := ragcore.Entity{ID: getString(rec, "bId"), Name: getString(rec, "bName"), Type: ragcore.EntityType(getString(rec, "bType"))}
		weight := 1.0
		if v, ok := rec.Get("weight"); ok {
			if f, ok := v.(float64); ok {
				weight = f
			}
		}
		g.addEdge(ragcore.Edge{From: a.ID, To: b.ID, Weight: weight}, a, b)
	}
	return g, nil
}

// ---------------------------------------------------------------------
// Detector 1: orgao_empresa_comention — direct co-mention edges between a
// court/organ entity and a company entity above a weight threshold.
// ---------------------------------------------------------------------
func DetectOrgaoEmpresaComention(g *Graph, minWeight float64) []RiskSignal {
	var out []RiskSignal
	seen := make(map[string]bool)
	for id, n := range g.Nodes {
		if n.Type != ragcore.EntityCourt && n.Type != ragcore.EntityOrganization {
			continue
		}
		for neighborID, weight := range g.neighbors(id) {
			if weight < minWeight {
				continue
			}
			neighbor := g.Nodes[neighborID]
			if neighbor.Type != ragcore.EntityCompany {
				continue
			}
			key := pairKey(id, neighborID)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, RiskSignal{
				DetectorKey: "orgao_empresa_comention",
				Label:       fmt.Sprintf("%s <-> %s co-mentioned %.0fx", n.Name, neighbor.Name, weight),
				Score:       weight,
				Entities:    []string{id, neighborID},
			})
		}
	}
	sortSignalsDesc(out)
	return out
}

// ---------------------------------------------------------------------
// Detector 2: comenciona_hotspots — entities whose co-mention degree is a
// statistical outlier (> mean + 2*stddev).
// ---------------------------------------------------------------------
func DetectComencionaHotspots(g *Graph) []RiskSignal {
	ids := g.nodeIDs()
	if len(ids) == 0 {
		return nil
	}
	degrees := make([]float64, len(ids))
	var sum float64
	for i, id := range ids {
		degrees[i] = float64(g.degree(id))
		sum += degrees[i]
	}
	mean := sum / float64(len(ids))
	var variance float64
	for _, d := range degrees {
		variance += (d - mean) * (d - mean)
	}
	stddev := math.Sqrt(variance / float64(len(ids)))
	threshold := mean + 2*stddev

	var out []RiskSignal
	for i, id := range ids {
		if degrees[i] > threshold && degrees[i] > 0 {
			out = append(out, RiskSignal{
				DetectorKey: "comenciona_hotspots",
				Label:       fmt.Sprintf("%s is a co-mention hotspot (degree %.0f, mean %.1f)", g.Nodes[id].Name, degrees[i], mean),
				Score:       degrees[i],
				Entities:    []string{id},
			})
		}
	}
	sortSignalsDesc(out)
	return out
}

// ---------------------------------------------------------------------
// Detector 3: multi_process_actor — a person/company entity connected to an
// unusually high number of distinct process entities.
// ---------------------------------------------------------------------
func DetectMultiProcessActor(g *Graph, minProcesses int) []RiskSignal {
	var out []RiskSignal
	for id, n := range g.Nodes {
		if n.Type != ragcore.EntityPerson && n.Type != ragcore.EntityCompany {
			continue
		}
		count := 0
		for neighborID := range g.neighbors(id) {
			if g.Nodes[neighborID].Type == ragcore.EntityProcess {
				count++
			}
		}
		if count >= minProcesses {
			out = append(out, RiskSignal{
				DetectorKey: "multi_process_actor",
				Label:       fmt.Sprintf("%s appears in %d processes", n.Name, count),
				Score:       float64(count),
				Entities:    []string{id},
			})
		}
	}
	sortSignalsDesc(out)
	return out
}

// ---------------------------------------------------------------------
// Detector 4: representacao_massiva — a person REPRESENTS an unusually high
// number of distinct company/process entities.
// ---------------------------------------------------------------------
func DetectRepresentacaoMassiva(g *Graph, edges []ragcore.Edge, minRepresented int) []RiskSignal {
	counts := make(map[string]map[string]bool)
	for _, e := range edges {
		if e.Type != ragcore.EdgeRepresents {
			continue
		}
		if counts[e.From] == nil {
			counts[e.From] = make(map[string]bool)
		}
		counts[e.From][e.To] = true
	}
	var out []RiskSignal
	for actor, represented := range counts {
		if len(represented) >= minRepresented {
			n := g.Nodes[actor]
			out = append(out, RiskSignal{
				DetectorKey: "representacao_massiva",
				Label:       fmt.Sprintf("%s represents %d distinct parties", n.Name, len(represented)),
				Score:       float64(len(represented)),
				Entities:    []string{actor},
			})
		}
	}
	sortSignalsDesc(out)
	return out
}

// ---------------------------------------------------------------------
// Detector 5: process_network_hubs — plain degree-centrality ranking over
// process entities.
// ---------------------------------------------------------------------
func DetectProcessNetworkHubs(g *Graph, topN int) []RiskSignal {
	var out []RiskSignal
	for id, n := range g.Nodes {
		if n.Type != ragcore.EntityProcess {
			continue
		}
		out = append(out, RiskSignal{
			DetectorKey: "process_network_hubs",
			Label:       fmt.Sprintf("%s connects to %d entities", n.Name, g.degree(id)),
			Score:       float64(g.degree(id)),
			Entities:    []string{id},
		})
	}
	sortSignalsDesc(out)
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// ---------------------------------------------------------------------
// Detector 6: connected_risk_clusters — weakly connected components (WCC),
// flagging small isolated clusters with high internal edge density as
// potential shell-structure rings.
// ---------------------------------------------------------------------
func DetectConnectedRiskClusters(g *Graph, maxClusterSize int, minDensity float64) []RiskSignal {
	components := weaklyConnectedComponents(g)
	var out []RiskSignal
	for _, comp := range components {
		if len(comp) == 0 || len(comp) > maxClusterSize {
			continue
		}
		edgeCount := 0
		for _, id := range comp {
			edgeCount += g.degree(id)
		}
		edgeCount /= 2
		n := len(comp)
		maxEdges := n * (n - 1) / 2
		density := 0.0
		if maxEdges > 0 {
			density = float64(edgeCount) / float64(maxEdges)
		}
		if density >= minDensity {
			out = append(out, RiskSignal{
				DetectorKey: "connected_risk_clusters",
				Label:       fmt.Sprintf("isolated cluster of %d entities, density %.2f", n, density),
				Score:       density,
				Entities:    comp,
			})
		}
	}
	sortSignalsDesc(out)
	return out
}

func weaklyConnectedComponents(g *Graph) [][]string {
	visited := make(map[string]bool)
	var components [][]string
	for _, id := range g.nodeIDs() {
		if visited[id] {
			continue
		}
		var comp []string
		queue := []string{id}
		visited[id] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			comp = append(comp, cur)
			for neighborID := range g.neighbors(cur) {
				if !visited[neighborID] {
					visited[neighborID] = true
					queue = append(queue, neighborID)
				}
			}
		}
		components = append(components, comp)
	}
	return components
}

// ---------------------------------------------------------------------
// Detector 7: influence_propagation — eigenvector centrality via power
// iteration, standing in for the GDS eigenvector algorithm.
// ---------------------------------------------------------------------
func DetectInfluencePropagation(g *Graph, topN int) []RiskSignal {
	scores := eigenvectorCentrality(g, 100, 1e-6)
	var out []RiskSignal
	for id, score := range scores {
		if score <= 0 {
			continue
		}
		out = append(out, RiskSignal{
			DetectorKey: "influence_propagation",
			Label:       fmt.Sprintf("%s has eigenvector centrality %.4f", g.Nodes[id].Name, score),
			Score:       score,
			Entities:    []string{id},
		})
	}
	sortSignalsDesc(out)
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

func eigenvectorCentrality(g *Graph, iterations int, tolerance float64) map[string]float64 {
	ids := g.nodeIDs()
	scores := make(map[string]float64, len(ids))
	for _, id := range ids {
		scores[id] = 1.0
	}
	for iter := 0; iter < iterations; iter++ {
		next := make(map[string]float64, len(ids))
		var norm float64
		for _, id := range ids {
			var sum float64
			for neighborID, weight := range g.neighbors(id) {
				sum += weight * scores[neighborID]
			}
			next[id] = sum
			norm += sum * sum
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			break
		}
		var delta float64
		for _, id := range ids {
			next[id] /= norm
			delta += math.Abs(next[id] - scores[id])
		}
		scores = next
		if delta < tolerance {
			break
		}
	}
	return scores
}

// ---------------------------------------------------------------------
// Detector 8: critical_intermediaries — unweighted betweenness centrality
// via Brandes' algorithm, standing in for the GDS betweenness algorithm.
// ---------------------------------------------------------------------
func DetectCriticalIntermediaries(g *Graph, topN int) []RiskSignal {
	scores := betweennessCentrality(g)
	var out []RiskSignal
	for id, score := range scores {
		if score <= 0 {
			continue
		}
		out = append(out, RiskSignal{
			DetectorKey: "critical_intermediaries",
			Label:       fmt.Sprintf("%s has betweenness %.2f", g.Nodes[id].Name, score),
			Score:       score,
			Entities:    []string{id},
		})
	}
	sortSignalsDesc(out)
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// betweennessCentrality implements Brandes' algorithm for unweighted graphs.
func betweennessCentrality(g *Graph) map[string]float64 {
	ids := g.nodeIDs()
	centrality := make(map[string]float64, len(ids))
	for _, id := range ids {
		centrality[id] = 0
	}

	for _, s := range ids {
		stack := []string{}
		pred := make(map[string][]string)
		sigma := make(map[string]float64)
		dist := make(map[string]int)
		for _, id := range ids {
			sigma[id] = 0
			dist[id] = -1
		}
		sigma[s] = 1
		dist[s] = 0
		queue := []string{s}

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for w := range g.neighbors(v) {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					pred[w] = append(pred[w], v)
				}
			}
		}

		delta := make(map[string]float64)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range pred[w] {
				if sigma[w] > 0 {
					delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
				}
			}
			if w != s {
				centrality[w] += delta[w]
			}
		}
	}

	// Undirected graph: every shortest path counted from both endpoints.
	for id := range centrality {
		centrality[id] /= 2
	}
	return centrality
}

// ---------------------------------------------------------------------
// Detector 9: hidden_communities — label propagation as a fast, dependency-
// free substitute for Leiden community detection; communities with size
// above minSize but no corresponding "process" backing them are flagged.
// ---------------------------------------------------------------------
func DetectHiddenCommunities(g *Graph, minSize int) []RiskSignal {
	labels := labelPropagation(g, 20)
	byLabel := make(map[string][]string)
	for id, label := range labels {
		byLabel[label] = append(byLabel[label], id)
	}

	var out []RiskSignal
	for label, members := range byLabel {
		if len(members) < minSize {
			continue
		}
		hasProcess := false
		for _, id := range members {
			if g.Nodes[id].Type == ragcore.EntityProcess {
				hasProcess = true
				break
			}
		}
		if hasProcess {
			continue
		}
		out = append(out, RiskSignal{
			DetectorKey: "hidden_communities",
			Label:       fmt.Sprintf("community %s of %d entities has no linked process", label, len(members)),
			Score:       float64(len(members)),
			Entities:    members,
		})
	}
	sortSignalsDesc(out)
	return out
}

func labelPropagation(g *Graph, iterations int) map[string]string {
	ids := g.nodeIDs()
	labels := make(map[string]string, len(ids))
	for _, id := range ids {
		labels[id] = id
	}
	for iter := 0; iter < iterations; iter++ {
		changed := false
		for _, id := range ids {
			counts := make(map[string]float64)
			for neighborID, weight := range g.neighbors(id) {
				counts[labels[neighborID]] += weight
			}
			best, bestWeight := labels[id], -1.0
			bestLabels := []string{}
			for label, weight := range counts {
				if weight > bestWeight {
					bestWeight = weight
					bestLabels = []string{label}
				} else if weight == bestWeight {
					bestLabels = append(bestLabels, label)
				}
			}
			sort.Strings(bestLabels)
			if len(bestLabels) > 0 {
				best = bestLabels[0]
			}
			if best != labels[id] {
				labels[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return labels
}

// ---------------------------------------------------------------------
// Detector 10: behavioral_similarity — Jaccard similarity of neighbor sets
// between entity pairs, flagging pairs that behave like the same actor
// under different names.
// ---------------------------------------------------------------------
func DetectBehavioralSimilarity(g *Graph, minSimilarity float64) []RiskSignal {
	ids := g.nodeIDs()
	var out []RiskSignal
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			sim := jaccard(g.neighbors(a), g.neighbors(b))
			if sim >= minSimilarity && sim > 0 {
				out = append(out, RiskSignal{
					DetectorKey: "behavioral_similarity",
					Label:       fmt.Sprintf("%s and %s share %.0f%% of neighbors", g.Nodes[a].Name, g.Nodes[b].Name, sim*100),
					Score:       sim,
					Entities:    []string{a, b},
				})
			}
		}
	}
	sortSignalsDesc(out)
	return out
}

func jaccard(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// ---------------------------------------------------------------------
// Detector 11: collusion_triangles — entities participating in an unusually
// high number of closed triangles (mutual co-mention rings).
// ---------------------------------------------------------------------
func DetectCollusionTriangles(g *Graph, minTriangles int) []RiskSignal {
	counts := triangleCounts(g)
	var out []RiskSignal
	for id, count := range counts {
		if count >= minTriangles {
			out = append(out, RiskSignal{
				DetectorKey: "collusion_triangles",
				Label:       fmt.Sprintf("%s participates in %d closed triangles", g.Nodes[id].Name, count),
				Score:       float64(count),
				Entities:    []string{id},
			})
		}
	}
	sortSignalsDesc(out)
	return out
}

func triangleCounts(g *Graph) map[string]int {
	counts := make(map[string]int)
	for _, id := range g.nodeIDs() {
		neighbors := g.neighbors(id)
		neighborIDs := make([]string, 0, len(neighbors))
		for n := range neighbors {
			neighborIDs = append(neighborIDs, n)
		}
		for i := 0; i < len(neighborIDs); i++ {
			for j := i + 1; j < len(neighborIDs); j++ {
				if _, ok := g.neighbors(neighborIDs[i])[neighborIDs[j]]; ok {
					counts[id]++
				}
			}
		}
	}
	return counts
}

// ---------------------------------------------------------------------
// Detector 12: structural_vulnerabilities — bridges and articulation
// points, the single edges/nodes whose removal would split the network
// (classic single points of failure in a shell-company chain).
// ---------------------------------------------------------------------
func DetectStructuralVulnerabilities(g *Graph) []RiskSignal {
	bridges, articulationPoints := bridgesAndArticulationPoints(g)

	var out []RiskSignal
	for _, b := range bridges {
		out = append(out, RiskSignal{
			DetectorKey: "structural_vulnerabilities",
			Label:       fmt.Sprintf("bridge edge %s - %s", g.Nodes[b[0]].Name, g.Nodes[b[1]].Name),
			Score:       1.0,
			Entities:    []string{b[0], b[1]},
			Evidence:    map[string]any{"kind": "bridge"},
		})
	}
	for _, id := range articulationPoints {
		out = append(out, RiskSignal{
			DetectorKey: "structural_vulnerabilities",
			Label:       fmt.Sprintf("articulation point %s", g.Nodes[id].Name),
			Score:       float64(g.degree(id)),
			Entities:    []string{id},
			Evidence:    map[string]any{"kind": "articulation_point"},
		})
	}
	sortSignalsDesc(out)
	return out
}

// bridgesAndArticulationPoints runs a single DFS computing discovery/low-link
// numbers (Tarjan's bridge-finding algorithm), returning both bridge edges
// and articulation points in one pass.
func bridgesAndArticulationPoints(g *Graph) ([][2]string, []string) {
	disc := make(map[string]int)
	low := make(map[string]int)
	parent := make(map[string]string)
	visited := make(map[string]bool)
	isArticulation := make(map[string]bool)
	var bridges [][2]string
	timer := 0

	var dfs func(u string)
	dfs = func(u string) {
		visited[u] = true
		disc[u] = timer
		low[u] = timer
		timer++
		children := 0

		neighborIDs := make([]string, 0, len(g.neighbors(u)))
		for n := range g.neighbors(u) {
			neighborIDs = append(neighborIDs, n)
		}
		sort.Strings(neighborIDs)

		for _, v := range neighborIDs {
			if !visited[v] {
				children++
				parent[v] = u
				dfs(v)
				low[u] = minInt(low[u], low[v])

				if parent[u] != "" && low[v] >= disc[u] {
					isArticulation[u] = true
				}
				if low[v] > disc[u] {
					bridges = append(bridges, [2]string{u, v})
				}
			} else if v != parent[u] {
				low[u] = minInt(low[u], disc[v])
			}
		}
		if parent[u] == "" && children > 1 {
			isArticulation[u] = true
		}
	}

	for _, id := range g.nodeIDs() {
		if !visited[id] {
			dfs(id)
		}
	}

	var articulationPoints []string
	for id, flagged := range isArticulation {
		if flagged {
			articulationPoints = append(articulationPoints, id)
		}
	}
	sort.Strings(articulationPoints)
	return bridges, articulationPoints
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

func sortSignalsDesc(signals []RiskSignal) {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Score > signals[j].Score
	})
}
