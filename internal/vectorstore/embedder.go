package vectorstore

import "context"

// Embedder turns text into a dense vector. Production wiring backs this with
// an LLM provider's embedding endpoint; tests use a deterministic stub.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// SparseEmbedder turns text into a sparse (term-weighted) vector for hybrid
// dense+sparse search, addressing spec §4.3's optional sparse-vector leg.
type SparseEmbedder interface {
	EmbedSparse(ctx context.Context, text string) (indices []uint32, values []float32, err error)
}
