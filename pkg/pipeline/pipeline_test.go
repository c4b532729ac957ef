package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/rag/internal/models"
	"github.com/xhad/rag/pkg/chunker"
	"github.com/xhad/rag/pkg/docsource"
	"github.com/xhad/rag/pkg/pipeline"
)

// --- fakes -----------------------------------------------------------------

type fakeSource struct {
	docs map[string]string
	errs map[string]error
}

func (s *fakeSource) GetText(_ context.Context, documentID string) (string, error) {
	if err, ok := s.errs[documentID]; ok {
		return "", err
	}
	if text, ok := s.docs[documentID]; ok {
		return text, nil
	}
	return "", docsource.ErrDocumentNotFound
}

// fakeEmbedder produces deterministic bag-of-words vectors so that
// similarity search behaves sensibly without a real provider.
type fakeEmbedder struct {
	failWith error
}

var vocab = []string{"paris", "capital", "france", "known", "eiffel", "tower"}

func embedText(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, len(vocab))
	for i, word := range vocab {
		vec[i] = float32(strings.Count(lower, word))
	}
	return vec
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.failWith != nil {
		return nil, e.failWith
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = embedText(text)
	}
	return vectors, nil
}

func (e *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type memRecord struct {
	chunk models.Chunk
	vec   []float32
}

// memIndex is an in-memory stand-in for the vector store with cosine
// similarity and document-id filtering.
type memIndex struct {
	records    []memRecord
	failSearch error
	failUpsert error
}

func (m *memIndex) Upsert(_ context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if m.failUpsert != nil {
		return m.failUpsert
	}
	if len(chunks) != len(vectors) {
		return errors.New("chunk/vector count mismatch")
	}
	for i := range chunks {
		m.records = append(m.records, memRecord{chunk: chunks[i], vec: vectors[i]})
	}
	return nil
}

func (m *memIndex) Search(_ context.Context, vector []float32, documentIDs []string, topK int) ([]models.RetrievedMatch, error) {
	if m.failSearch != nil {
		return nil, m.failSearch
	}
	allowed := map[string]bool{}
	for _, id := range documentIDs {
		allowed[id] = true
	}

	var matches []models.RetrievedMatch
	for _, r := range m.records {
		if len(allowed) > 0 && !allowed[r.chunk.DocumentID] {
			continue
		}
		matches = append(matches, models.RetrievedMatch{
			ID:         r.chunk.ChunkID,
			Score:      cosine(vector, r.vec),
			Text:       r.chunk.Text,
			DocumentID: r.chunk.DocumentID,
			ChunkIndex: r.chunk.ChunkIndex,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *memIndex) DeleteDocument(_ context.Context, documentID string) error {
	kept := m.records[:0]
	for _, r := range m.records {
		if r.chunk.DocumentID != documentID {
			kept = append(kept, r)
		}
	}
	m.records = kept
	return nil
}

func (m *memIndex) chunksFor(documentID string) []models.Chunk {
	var chunks []models.Chunk
	for _, r := range m.records {
		if r.chunk.DocumentID == documentID {
			chunks = append(chunks, r.chunk)
		}
	}
	return chunks
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

type fakeSynth struct {
	answer     models.Answer
	err        error
	gotMatches []models.RetrievedMatch
}

func (s *fakeSynth) Synthesize(_ context.Context, _ string, matches []models.RetrievedMatch) (models.Answer, error) {
	s.gotMatches = matches
	if s.err != nil {
		return models.Answer{}, s.err
	}
	return s.answer, nil
}

type fakeChunker struct{}

func (fakeChunker) Chunk(string, string) []models.Chunk { return nil }

type recordReporter struct {
	runs []models.QueryRun
}

func (r *recordReporter) Report(_ context.Context, run models.QueryRun) bool {
	r.runs = append(r.runs, run)
	return true
}

// --- harness ---------------------------------------------------------------

type deps struct {
	source   *fakeSource
	embedder *fakeEmbedder
	index    *memIndex
	synth    *fakeSynth
	reporter *recordReporter
}

func newPipeline(t *testing.T, d *deps) *pipeline.Pipeline {
	t.Helper()
	chk, err := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 40, ChunkOverlap: 10})
	require.NoError(t, err)
	return pipeline.New(pipeline.Config{}, chk, d.embedder, d.index, d.synth, d.source, d.reporter, nil)
}

func defaultDeps() *deps {
	return &deps{
		source:   &fakeSource{docs: map[string]string{}, errs: map[string]error{}},
		embedder: &fakeEmbedder{},
		index:    &memIndex{},
		synth: &fakeSynth{answer: models.Answer{
			Text:            "Paris is known for the Eiffel Tower.",
			TokensConsumed:  120,
			TokensGenerated: 40,
		}},
		reporter: &recordReporter{},
	}
}

const parisText = "Paris is the capital of France. It is known for the Eiffel Tower."

// --- indexing flow ---------------------------------------------------------

func TestIndexDocuments_Isolation(t *testing.T) {
	d := defaultDeps()
	d.source.docs["doc-b"] = parisText
	// doc-a is unknown to the source

	p := newPipeline(t, d)
	results, err := p.IndexDocuments(context.Background(), []string{"doc-a", "doc-b"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "doc-a", results[0].DocumentID)
	assert.Equal(t, models.IndexStatusFailed, results[0].Status)
	assert.Equal(t, "Document not found or empty", results[0].Message)

	assert.Equal(t, "doc-b", results[1].DocumentID)
	assert.Equal(t, models.IndexStatusSuccess, results[1].Status)
	assert.Contains(t, results[1].Message, "Indexed")

	// doc-b's chunks were upserted despite doc-a failing
	assert.NotEmpty(t, d.index.chunksFor("doc-b"))
	assert.Empty(t, d.index.chunksFor("doc-a"))
}

func TestIndexDocuments_EmptyRequest(t *testing.T) {
	p := newPipeline(t, defaultDeps())

	_, err := p.IndexDocuments(context.Background(), nil)
	assert.ErrorIs(t, err, pipeline.ErrNoDocumentIDs)
}

func TestIndexDocuments_EmptyDocumentText(t *testing.T) {
	d := defaultDeps()
	d.source.docs["doc-a"] = "   \n  "

	p := newPipeline(t, d)
	results, err := p.IndexDocuments(context.Background(), []string{"doc-a"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.IndexStatusFailed, results[0].Status)
	assert.Equal(t, "Document not found or empty", results[0].Message)
}

func TestIndexDocuments_NoChunksGenerated(t *testing.T) {
	d := defaultDeps()
	d.source.docs["doc-a"] = parisText

	p := pipeline.New(pipeline.Config{}, fakeChunker{}, d.embedder, d.index, d.synth, d.source, d.reporter, nil)
	results, err := p.IndexDocuments(context.Background(), []string{"doc-a"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.IndexStatusFailed, results[0].Status)
	assert.Equal(t, "No chunks generated from document", results[0].Message)
}

func TestIndexDocuments_EmbeddingFailure(t *testing.T) {
	d := defaultDeps()
	d.source.docs["doc-a"] = parisText
	d.embedder.failWith = errors.New("provider down")

	p := newPipeline(t, d)
	results, err := p.IndexDocuments(context.Background(), []string{"doc-a"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.IndexStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Message, "provider down")
	assert.Empty(t, d.index.records)
}

func TestIndexDocuments_UpsertFailure(t *testing.T) {
	d := defaultDeps()
	d.source.docs["doc-a"] = parisText
	d.index.failUpsert = errors.New("index unavailable")

	p := newPipeline(t, d)
	results, err := p.IndexDocuments(context.Background(), []string{"doc-a"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.IndexStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Message, "index unavailable")
}

func TestIndexDocuments_SourceError(t *testing.T) {
	d := defaultDeps()
	d.source.errs["doc-a"] = fmt.Errorf("failed to fetch document doc-a: connection refused")

	p := newPipeline(t, d)
	results, err := p.IndexDocuments(context.Background(), []string{"doc-a"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.IndexStatusFailed, results[0].Status)
	assert.Contains(t, results[0].Message, "connection refused")
}

// --- query flow ------------------------------------------------------------

func indexParis(t *testing.T, p *pipeline.Pipeline) {
	t.Helper()
	results, err := p.IndexDocuments(context.Background(), []string{"paris-doc"})
	require.NoError(t, err)
	require.Equal(t, models.IndexStatusSuccess, results[0].Status)
}

func TestQueryDocuments_EmptyQuestion(t *testing.T) {
	d := defaultDeps()
	p := newPipeline(t, d)

	_, err := p.QueryDocuments(context.Background(), []string{"doc"}, "  ")
	assert.ErrorIs(t, err, pipeline.ErrEmptyQuestion)
	assert.Empty(t, d.reporter.runs)
}

func TestQueryDocuments_NoMatches(t *testing.T) {
	d := defaultDeps()
	p := newPipeline(t, d)

	// nothing indexed: retrieval comes back empty
	_, err := p.QueryDocuments(context.Background(), []string{"doc"}, "What is Paris known for?")
	assert.ErrorIs(t, err, pipeline.ErrNoMatches)

	// the zero-match outcome emits no metrics record
	assert.Empty(t, d.reporter.runs)
}

func TestQueryDocuments_EmbeddingFailure(t *testing.T) {
	d := defaultDeps()
	d.embedder.failWith = errors.New("embedding provider unavailable")
	p := newPipeline(t, d)

	_, err := p.QueryDocuments(context.Background(), []string{"doc"}, "What is Paris known for?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding provider unavailable")

	require.Len(t, d.reporter.runs, 1)
	run := d.reporter.runs[0]
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 0, run.TokensConsumed)
	assert.Equal(t, 0, run.TokensGenerated)
	assert.Equal(t, 0.0, run.ConfidenceScore)
	assert.NotEmpty(t, run.RunID)
}

func TestQueryDocuments_SearchFailure(t *testing.T) {
	d := defaultDeps()
	d.index.failSearch = errors.New("index unavailable")
	p := newPipeline(t, d)

	_, err := p.QueryDocuments(context.Background(), []string{"doc"}, "question")
	require.Error(t, err)

	require.Len(t, d.reporter.runs, 1)
	assert.Equal(t, models.RunStatusFailed, d.reporter.runs[0].Status)
}

func TestQueryDocuments_SynthesisFailure(t *testing.T) {
	d := defaultDeps()
	d.source.docs["paris-doc"] = parisText
	d.synth.err = errors.New("LLM unavailable")
	p := newPipeline(t, d)
	indexParis(t, p)

	_, err := p.QueryDocuments(context.Background(), []string{"paris-doc"}, "What is Paris known for?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM unavailable")

	require.Len(t, d.reporter.runs, 1)
	run := d.reporter.runs[0]
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 0, run.TokensConsumed)
	assert.Equal(t, 0.0, run.ConfidenceScore)
}

func TestQueryDocuments_Success(t *testing.T) {
	d := defaultDeps()
	d.source.docs["paris-doc"] = parisText
	p := newPipeline(t, d)
	indexParis(t, p)

	result, err := p.QueryDocuments(context.Background(), []string{"paris-doc"}, "What is Paris known for?")
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "Paris is known for the Eiffel Tower.", result.Answer)
	assert.Equal(t, 120, result.TokensConsumed)
	assert.Equal(t, 40, result.TokensGenerated)
	assert.GreaterOrEqual(t, result.ConfidenceScore, 0.1)
	assert.LessOrEqual(t, result.ConfidenceScore, 0.95)

	// exactly one metrics record, marked success, matching the response
	require.Len(t, d.reporter.runs, 1)
	run := d.reporter.runs[0]
	assert.Equal(t, result.RunID, run.RunID)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, result.TokensConsumed, run.TokensConsumed)
	assert.Equal(t, result.TokensGenerated, run.TokensGenerated)
	assert.Equal(t, result.ConfidenceScore, run.ConfidenceScore)
}

func TestQueryDocuments_ScopedToDocumentIDs(t *testing.T) {
	d := defaultDeps()
	d.source.docs["paris-doc"] = parisText
	d.source.docs["other-doc"] = "Paris and France and the Eiffel Tower, all of it, in another document entirely."
	p := newPipeline(t, d)

	results, err := p.IndexDocuments(context.Background(), []string{"paris-doc", "other-doc"})
	require.NoError(t, err)
	for _, r := range results {
		require.Equal(t, models.IndexStatusSuccess, r.Status)
	}

	_, err = p.QueryDocuments(context.Background(), []string{"paris-doc"}, "What is Paris known for?")
	require.NoError(t, err)

	for _, m := range d.synth.gotMatches {
		assert.Equal(t, "paris-doc", m.DocumentID)
	}
}

func TestQueryDocuments_MatchesRankedByScore(t *testing.T) {
	d := defaultDeps()
	d.source.docs["paris-doc"] = parisText
	p := newPipeline(t, d)
	indexParis(t, p)

	_, err := p.QueryDocuments(context.Background(), []string{"paris-doc"}, "What is Paris known for?")
	require.NoError(t, err)

	require.NotEmpty(t, d.synth.gotMatches)
	for i := 1; i < len(d.synth.gotMatches); i++ {
		assert.GreaterOrEqual(t, d.synth.gotMatches[i-1].Score, d.synth.gotMatches[i].Score)
	}
}

func TestEndToEnd_ParisScenario(t *testing.T) {
	d := defaultDeps()
	d.source.docs["paris-doc"] = parisText
	p := newPipeline(t, d) // chunk size 40, overlap 10
	indexParis(t, p)

	result, err := p.QueryDocuments(context.Background(), []string{"paris-doc"}, "What is Paris known for?")
	require.NoError(t, err)

	var sawEiffel bool
	for _, m := range d.synth.gotMatches {
		if strings.Contains(m.Text, "Eiffel Tower") {
			sawEiffel = true
		}
	}
	assert.True(t, sawEiffel, "expected a retrieved chunk containing 'Eiffel Tower'")

	assert.GreaterOrEqual(t, result.ConfidenceScore, 0.1)
	assert.LessOrEqual(t, result.ConfidenceScore, 0.95)

	require.Len(t, d.reporter.runs, 1)
	assert.Equal(t, models.RunStatusSuccess, d.reporter.runs[0].Status)
}

func TestRemoveDocument(t *testing.T) {
	d := defaultDeps()
	d.source.docs["paris-doc"] = parisText
	p := newPipeline(t, d)
	indexParis(t, p)

	require.NoError(t, p.RemoveDocument(context.Background(), "paris-doc"))
	assert.Empty(t, d.index.chunksFor("paris-doc"))

	// deleting again is a no-op
	assert.NoError(t, p.RemoveDocument(context.Background(), "paris-doc"))
}
