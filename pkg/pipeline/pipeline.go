package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/xhad/rag/internal/models"
	"github.com/xhad/rag/internal/types"
	"github.com/xhad/rag/pkg/docsource"
	"github.com/xhad/rag/pkg/llm"
)

// ErrNoMatches means retrieval found nothing for the question within
// the given documents. It is a client-visible empty result, not a
// pipeline failure, and by design emits no metrics record.
var ErrNoMatches = errors.New("no relevant content found for the given question and documents")

// ErrEmptyQuestion reports a query call without a question.
var ErrEmptyQuestion = errors.New("question must not be empty")

// ErrNoDocumentIDs reports an indexing call without document ids.
var ErrNoDocumentIDs = errors.New("document_ids must not be empty")

type Config struct {
	TopK int
}

// Pipeline sequences the indexing and query flows over the injected
// collaborators. It holds no per-request state; every dependency is a
// process-scoped client constructed once at startup.
type Pipeline struct {
	config   Config
	chunker  types.Chunker
	embedder types.Embedder
	index    types.VectorIndex
	synth    types.Synthesizer
	source   types.DocumentSource
	reporter types.MetricsReporter
	logger   *log.Logger
}

func New(config Config, chunker types.Chunker, embedder types.Embedder, index types.VectorIndex,
	synth types.Synthesizer, source types.DocumentSource, reporter types.MetricsReporter, logger *log.Logger) *Pipeline {
	if config.TopK == 0 {
		config.TopK = 5
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		config:   config,
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		synth:    synth,
		source:   source,
		reporter: reporter,
		logger:   logger,
	}
}

// IndexDocuments fetches, chunks, embeds and upserts each requested
// document. Documents are processed independently: one failure becomes
// one failed status entry and never aborts the rest. The result list
// preserves request order, one entry per id.
func (p *Pipeline) IndexDocuments(ctx context.Context, documentIDs []string) ([]models.IndexStatus, error) {
	if len(documentIDs) == 0 {
		return nil, ErrNoDocumentIDs
	}

	results := make([]models.IndexStatus, 0, len(documentIDs))
	for _, docID := range documentIDs {
		results = append(results, p.indexOne(ctx, docID))
	}

	return results, nil
}

func (p *Pipeline) indexOne(ctx context.Context, documentID string) models.IndexStatus {
	failed := func(message string) models.IndexStatus {
		p.logger.Warn("indexing failed", "document_id", documentID, "reason", message)
		return models.IndexStatus{
			DocumentID: documentID,
			Status:     models.IndexStatusFailed,
			Message:    message,
		}
	}

	text, err := p.source.GetText(ctx, documentID)
	if err != nil {
		if errors.Is(err, docsource.ErrDocumentNotFound) {
			return failed("Document not found or empty")
		}
		return failed(err.Error())
	}
	if strings.TrimSpace(text) == "" {
		return failed("Document not found or empty")
	}

	chunks := p.chunker.Chunk(documentID, text)
	if len(chunks) == 0 {
		return failed("No chunks generated from document")
	}

	chunkTexts := make([]string, len(chunks))
	for i, chunk := range chunks {
		chunkTexts[i] = chunk.Text
	}

	vectors, err := p.embedder.Embed(ctx, chunkTexts)
	if err != nil {
		return failed(err.Error())
	}

	if err := p.index.Upsert(ctx, chunks, vectors); err != nil {
		return failed(err.Error())
	}

	p.logger.Info("indexed document", "document_id", documentID, "chunks", len(chunks))
	return models.IndexStatus{
		DocumentID: documentID,
		Status:     models.IndexStatusSuccess,
		Message:    fmt.Sprintf("Indexed %d chunks", len(chunks)),
	}
}

// QueryDocuments embeds the question, retrieves the most similar chunks
// within the given documents and synthesizes a grounded answer.
//
// Exactly one metrics record is reported per query that reaches the
// embedding step, with one deliberate exception: a retrieval that finds
// nothing returns ErrNoMatches and reports no metrics, mirroring the
// upstream service this replaces. An empty documentIDs list leaves the
// search unrestricted; that too is preserved source behavior.
func (p *Pipeline) QueryDocuments(ctx context.Context, documentIDs []string, question string) (*models.QueryResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	runID := uuid.NewString()
	started := time.Now()

	queryVector, err := p.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, p.failRun(ctx, runID, started, err)
	}

	matches, err := p.index.Search(ctx, queryVector, documentIDs, p.config.TopK)
	if err != nil {
		return nil, p.failRun(ctx, runID, started, err)
	}

	if len(matches) == 0 {
		return nil, ErrNoMatches
	}

	answer, err := p.synth.Synthesize(ctx, question, matches)
	if err != nil {
		return nil, p.failRun(ctx, runID, started, err)
	}

	confidence := llm.Confidence(answer.Text, matches)
	elapsed := time.Since(started).Milliseconds()

	p.reporter.Report(ctx, models.QueryRun{
		RunID:           runID,
		TokensConsumed:  answer.TokensConsumed,
		TokensGenerated: answer.TokensGenerated,
		ResponseTimeMs:  elapsed,
		ConfidenceScore: confidence,
		Status:          models.RunStatusSuccess,
	})

	p.logger.Info("query answered", "run_id", runID, "matches", len(matches),
		"confidence", confidence, "elapsed_ms", elapsed)

	return &models.QueryResult{
		RunID:           runID,
		Answer:          answer.Text,
		TokensConsumed:  answer.TokensConsumed,
		TokensGenerated: answer.TokensGenerated,
		ResponseTimeMs:  elapsed,
		ConfidenceScore: confidence,
	}, nil
}

// failRun reports a failed metrics record with zeroed usage and hands
// the original error back for propagation.
func (p *Pipeline) failRun(ctx context.Context, runID string, started time.Time, err error) error {
	elapsed := time.Since(started).Milliseconds()

	p.reporter.Report(ctx, models.QueryRun{
		RunID:           runID,
		TokensConsumed:  0,
		TokensGenerated: 0,
		ResponseTimeMs:  elapsed,
		ConfidenceScore: 0.0,
		Status:          models.RunStatusFailed,
	})

	p.logger.Error("query failed", "run_id", runID, "elapsed_ms", elapsed, "error", err)
	return err
}

// RemoveDocument drops a document's chunks from the index. Removing a
// document that was never indexed is a no-op.
func (p *Pipeline) RemoveDocument(ctx context.Context, documentID string) error {
	return p.index.DeleteDocument(ctx, documentID)
}
