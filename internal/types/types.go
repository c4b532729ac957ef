package types

import (
	"context"

	"github.com/xhad/rag/internal/models"
)

// Core interfaces wired together by the pipeline. Every implementation
// talks to an external service; fakes stand in for them in tests.

// Chunker splits one document's text into ordered, offset-tracked chunks.
type Chunker interface {
	Chunk(documentID, text string) []models.Chunk
}

// Embedder turns text into fixed-dimension vectors. Embed is
// all-or-nothing: either every input gets a vector, in input order,
// or the call fails as a whole.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores chunk vectors and serves filtered similarity search.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, documentIDs []string, topK int) ([]models.RetrievedMatch, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Synthesizer produces a grounded answer from retrieved context.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, matches []models.RetrievedMatch) (models.Answer, error)
}

// DocumentSource fetches a document's extracted text.
type DocumentSource interface {
	GetText(ctx context.Context, documentID string) (string, error)
}

// MetricsReporter delivers one run record, best-effort. It never returns
// an error; false means the record was not delivered.
type MetricsReporter interface {
	Report(ctx context.Context, run models.QueryRun) bool
}
