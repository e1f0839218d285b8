package coggrag

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// contradictionPairs are legal-domain phrase pairs whose co-occurrence
// across two evidence items for the same issue signals a contradiction
// worth surfacing to the reasoner, rather than silently averaging over it.
var contradictionPairs = [][2]string{
	{"procedente", "improcedente"},
	{"deferido", "indeferido"},
	{"revogad", "vigente"},
	{"constitucional", "inconstitucional"},
	{"cabível", "incabível"},
}

// DetectConflicts implements spec §4.9 stage 4: flags intra-node
// contradictions (two evidence items for the same node taking opposite
// positions) and cross-node contradictions (two nodes' evidence taking
// opposite positions on related issues), for the reasoner to mention rather
// than silently paper over.
func DetectConflicts(byNode map[string]NodeEvidence) []Conflict {
	var conflicts []Conflict

	nodeIDs := make([]string, 0, len(byNode))
	for id := range byNode {
		nodeIDs = append(nodeIDs, id)
	}

	for _, id := range nodeIDs {
		if c := intraNodeConflict(byNode[id]); c != nil {
			conflicts = append(conflicts, *c)
		}
	}

	for i := 0; i < len(nodeIDs); i++ {
		for j := i + 1; j < len(nodeIDs); j++ {
			if c := crossNodeConflict(nodeIDs[i], byNode[nodeIDs[i]], nodeIDs[j], byNode[nodeIDs[j]]); c != nil {
				conflicts = append(conflicts, *c)
			}
		}
	}

	return conflicts
}

func intraNodeConflict(ev NodeEvidence) *Conflict {
	for _, pair := range contradictionPairs {
		hasA, hasB := false, false
		for _, item := range ev.Items {
			lower := strings.ToLower(item.Text)
			if containsTerm(lower, pair[0]) {
				hasA = true
			}
			if containsTerm(lower, pair[1]) {
				hasB = true
			}
		}
		if hasA && hasB {
			return &Conflict{Type: "intra_node", NodeA: ev.NodeID, Detail: "evidência contraditória: " + pair[0] + " vs " + pair[1]}
		}
	}
	return nil
}

func crossNodeConflict(idA string, a NodeEvidence, idB string, b NodeEvidence) *Conflict {
	for _, pair := range contradictionPairs {
		if nodeContains(a, pair[0]) && nodeContains(b, pair[1]) {
			return &Conflict{Type: "cross_node", NodeA: idA, NodeB: idB, Detail: "posições opostas: " + pair[0] + " vs " + pair[1]}
		}
		if nodeContains(a, pair[1]) && nodeContains(b, pair[0]) {
			return &Conflict{Type: "cross_node", NodeA: idA, NodeB: idB, Detail: "posições opostas: " + pair[1] + " vs " + pair[0]}
		}
	}
	return nil
}

func nodeContains(ev NodeEvidence, substr string) bool {
	for _, item := range ev.Items {
		if containsTerm(strings.ToLower(item.Text), substr) {
			return true
		}
	}
	return false
}

// containsTerm reports whether term occurs in text at the start of a word,
// so that "procedente" is not found inside "improcedente".
func containsTerm(text, term string) bool {
	for offset := 0; ; {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			return false
		}
		start := offset + idx
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if start == 0 || !unicode.IsLetter(prev) {
			return true
		}
		offset = start + len(term)
	}
}

// conflictedNodes collapses a Conflict list into the set of node IDs
// involved, matching reasoner.py's conflict_nodes lookup.
func conflictedNodes(conflicts []Conflict) map[string]bool {
	out := make(map[string]bool)
	for _, c := range conflicts {
		if c.NodeA != "" {
			out[c.NodeA] = true
		}
		if c.NodeB != "" {
			out[c.NodeB] = true
		}
	}
	return out
}
