// Package lexical implements the BM25-family keyword retriever (spec §4.2):
// one index per dataset, visibility pushed into the scoring pass itself
// rather than applied as a post-filter.
package lexical

import (
	"math"
	"regexp"
	"strings"
	"sync"

	"legalrag/internal/ragcore"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var tokenRe = regexp.MustCompile(`[a-zA-ZÀ-ÿ0-9]+`)

func tokenize(text string) []string {
	return tokenRe.FindAllString(strings.ToLower(text), -1)
}

type postingEntry struct {
	docID string
	tf    int
}

// indexedDoc is one entry in an EnhancedBM25Index.
type indexedDoc struct {
	chunk   ragcore.Chunk
	termLen int
	terms   map[string]int
}

// EnhancedBM25Index is a single-dataset BM25 index with visibility-aware
// scoring: Search only ever considers documents the caller's ScopeContext
// admits, so no unbounded work happens on documents the caller could never
// see.
type EnhancedBM25Index struct {
	mu        sync.RWMutex
	docs      map[string]*indexedDoc
	postings  map[string][]postingEntry
	totalDocs int
	avgDocLen float64
	totalLen  int
}

// NewEnhancedBM25Index creates an empty index.
func NewEnhancedBM25Index() *EnhancedBM25Index {
	return &EnhancedBM25Index{
		docs:     make(map[string]*indexedDoc),
		postings: make(map[string][]postingEntry),
	}
}

// AddDocument indexes a bare id+text pair (test/compat entry point).
func (idx *EnhancedBM25Index) AddDocument(id, text string) {
	idx.AddChunk(ragcore.Chunk{ID: id, Text: text})
}

// AddChunk indexes a full chunk, preserving its visibility for scoped search.
func (idx *EnhancedBM25Index) AddChunk(c ragcore.Chunk) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, exists := idx.docs[c.ID]; exists {
		idx.totalLen -= old.termLen
		idx.totalDocs--
		idx.removePostingsLocked(c.ID)
	}

	terms := make(map[string]int)
	for _, tok := range tokenize(c.Text) {
		terms[tok]++
	}
	doc := &indexedDoc{chunk: c, termLen: len(tokenize(c.Text)), terms: terms}
	idx.docs[c.ID] = doc
	idx.totalDocs++
	idx.totalLen += doc.termLen

	for term, tf := range terms {
		idx.postings[term] = append(idx.postings[term], postingEntry{docID: c.ID, tf: tf})
	}
	idx.recalculateAvgDocLen()
}

// RemoveDocument removes a document from the index by id.
func (idx *EnhancedBM25Index) RemoveDocument(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	doc, ok := idx.docs[id]
	if !ok {
		return
	}
	idx.totalLen -= doc.termLen
	idx.totalDocs--
	delete(idx.docs, id)
	idx.removePostingsLocked(id)
	idx.recalculateAvgDocLen()
}

func (idx *EnhancedBM25Index) removePostingsLocked(id string) {
	for term, entries := range idx.postings {
		filtered := entries[:0]
		for _, e := range entries {
			if e.docID != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(idx.postings, term)
		} else {
			idx.postings[term] = filtered
		}
	}
}

func (idx *EnhancedBM25Index) recalculateAvgDocLen() {
	if idx.totalDocs == 0 {
		idx.avgDocLen = 0
		return
	}
	idx.avgDocLen = float64(idx.totalLen) / float64(idx.totalDocs)
}

// BM25Match is one scored hit from Search.
type BM25Match struct {
	Document ragcore.Chunk
	Score    float64
}

// Search scores the query against every document, with no visibility
// predicate, and returns the topK matches ordered by descending score.
// SearchScoped takes the predicate that enforces visibility inside the query.
func (idx *EnhancedBM25Index) Search(query string, topK int) []BM25Match {
	return idx.SearchScoped(query, topK, nil)
}

// SearchScoped is Search with an explicit visibility predicate.
func (idx *EnhancedBM25Index) SearchScoped(query string, topK int, admit func(ragcore.Visibility) bool) []BM25Match {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || idx.totalDocs == 0 {
		return nil
	}

	scores := make(map[string]float64)
	for _, term := range queryTerms {
		entries, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := len(entries)
		idf := math.Log(1 + (float64(idx.totalDocs)-float64(df)+0.5)/(float64(df)+0.5))
		for _, e := range entries {
			doc := idx.docs[e.docID]
			if doc == nil {
				continue
			}
			if admit != nil && !admit(doc.chunk.Visibility) {
				continue
			}
			tf := float64(e.tf)
			denom := tf + bm25K1*(1-bm25B+bm25B*float64(doc.termLen)/maxFloat(idx.avgDocLen, 1))
			scores[e.docID] += idf * (tf * (bm25K1 + 1)) / denom
		}
	}

	matches := make([]BM25Match, 0, len(scores))
	for id, score := range scores {
		matches = append(matches, BM25Match{Document: idx.docs[id].chunk, Score: score})
	}
	sortMatches(matches)
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

func sortMatches(matches []BM25Match) {
	for i := 1; i < len(matches); i++ {
		for j := i; j > 0; j-- {
			if matches[j].Score > matches[j-1].Score ||
				(matches[j].Score == matches[j-1].Score && matches[j].Document.ID < matches[j-1].Document.ID) {
				matches[j], matches[j-1] = matches[j-1], matches[j]
			} else {
				break
			}
		}
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
