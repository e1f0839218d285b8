package chunking

import (
	"fmt"
	"testing"

	"legalrag/internal/ragcore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSiblingFetcher struct {
	siblings map[string][]ragcore.Chunk
	err      error
}

func (f *fakeSiblingFetcher) Siblings(docID string, position, window int) ([]ragcore.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.siblings[fmt.Sprintf("%s:%d", docID, position)], nil
}

func chunkAt(docID, id string, position int, text string) ragcore.Chunk {
	return ragcore.Chunk{ID: id, DocID: docID, Position: position, Text: text}
}

func resultAt(c ragcore.Chunk, score float64) ragcore.RetrievalResult {
	return ragcore.RetrievalResult{Chunk: c, FusedScore: score, FullText: c.Text}
}

func TestExpand_NoFetcherReturnsUnchanged(t *testing.T) {
	results := []ragcore.RetrievalResult{resultAt(chunkAt("doc1", "c2", 2, "middle"), 0.9)}
	out := Expand(results, nil, DefaultExpansionConfig())
	assert.Equal(t, results, out)
}

func TestExpand_FetchesSiblingsAndMergesInOrder(t *testing.T) {
	fetcher := &fakeSiblingFetcher{siblings: map[string][]ragcore.Chunk{
		"doc1:2": {
			chunkAt("doc1", "c1", 1, "first"),
			chunkAt("doc1", "c3", 3, "third"),
		},
	}}
	results := []ragcore.RetrievalResult{resultAt(chunkAt("doc1", "c2", 2, "middle"), 0.9)}

	out := Expand(results, fetcher, ExpansionConfig{Window: 1, MaxExtra: 20, MergeAdjacent: false})
	require.Len(t, out, 1)
	assert.Equal(t, "first\n\nmiddle\n\nthird", out[0].FullText)
}

func TestExpand_BudgetLimitsTotalExtraChunks(t *testing.T) {
	fetcher := &fakeSiblingFetcher{siblings: map[string][]ragcore.Chunk{
		"doc1:1": {chunkAt("doc1", "c2", 2, "second")},
		"doc1:5": {chunkAt("doc1", "c6", 6, "sixth")},
	}}
	results := []ragcore.RetrievalResult{
		resultAt(chunkAt("doc1", "c1", 1, "first"), 0.9),
		resultAt(chunkAt("doc1", "c5", 5, "fifth"), 0.8),
	}

	out := Expand(results, fetcher, ExpansionConfig{Window: 1, MaxExtra: 1, MergeAdjacent: false})
	require.Len(t, out, 2)
	assert.Contains(t, out[0].FullText, "second")
	assert.Equal(t, "fifth", out[1].FullText)
}

func TestExpand_MergesAdjacentResultsFromSameDocument(t *testing.T) {
	results := []ragcore.RetrievalResult{
		resultAt(chunkAt("doc1", "c1", 1, "first"), 0.9),
		resultAt(chunkAt("doc1", "c2", 2, "second"), 0.8),
		resultAt(chunkAt("doc2", "d1", 1, "other doc"), 0.7),
	}
	fetcher := &fakeSiblingFetcher{siblings: map[string][]ragcore.Chunk{}}

	out := Expand(results, fetcher, ExpansionConfig{Window: 1, MaxExtra: 0, MergeAdjacent: true})
	require.Len(t, out, 2)
	assert.Equal(t, "first\n\nsecond", out[0].FullText)
	assert.Equal(t, "other doc", out[1].FullText)
}

func TestExpand_DoesNotMergeNonAdjacentPositions(t *testing.T) {
	results := []ragcore.RetrievalResult{
		resultAt(chunkAt("doc1", "c1", 1, "first"), 0.9),
		resultAt(chunkAt("doc1", "c9", 9, "far"), 0.8),
	}
	fetcher := &fakeSiblingFetcher{siblings: map[string][]ragcore.Chunk{}}

	out := Expand(results, fetcher, ExpansionConfig{Window: 1, MaxExtra: 0, MergeAdjacent: true})
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].FullText)
	assert.Equal(t, "far", out[1].FullText)
}
