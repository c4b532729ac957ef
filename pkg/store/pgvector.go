package store

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/rag/internal/models"
)

// ErrVectorCountMismatch reports a malformed upsert call. It is raised
// before any write is attempted.
var ErrVectorCountMismatch = errors.New("number of chunks must match number of embeddings")

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
	TopK       int
}

// VectorStore keeps chunk embeddings in a pgvector table and serves
// cosine-similarity search filtered by document id.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "rag_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // text-embedding-3-small
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.TopK == 0 {
		config.TopK = 5
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &VectorStore{
		config: config,
		pool:   pool,
	}, nil
}

// Provision creates the extension, table and ANN index. It is idempotent
// and must be called once at startup, never during request handling.
func (vs *VectorStore) Provision(ctx context.Context) error {
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			content TEXT,
			chunk_index INTEGER,
			start_char INTEGER,
			end_char INTEGER,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err := vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	if _, err := vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	createDocIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_document_id_idx
		ON %s (document_id)`,
		vs.config.TableName, vs.config.TableName)

	if _, err := vs.pool.Exec(ctx, createDocIndex); err != nil {
		return fmt.Errorf("failed to create document index: %w", err)
	}

	return nil
}

// Upsert writes chunk/vector pairs in sequential batches of BatchSize.
// Each batch commits on its own: a failure in batch k leaves batches
// 1..k-1 durably written. There is no rollback across batches and no
// retry; re-indexing the document replaces the rows by id.
func (vs *VectorStore) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return ErrVectorCountMismatch
	}
	if len(chunks) == 0 {
		return nil
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, content, chunk_index, start_char, end_char, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			content = EXCLUDED.content,
			chunk_index = EXCLUDED.chunk_index,
			start_char = EXCLUDED.start_char,
			end_char = EXCLUDED.end_char,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	batchSize := vs.config.BatchSize
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		if err := vs.upsertBatch(ctx, stmt, chunks[i:end], vectors[i:end]); err != nil {
			return fmt.Errorf("failed to upsert batch starting at chunk %d: %w", i, err)
		}
	}

	return nil
}

func (vs *VectorStore) upsertBatch(ctx context.Context, stmt string, chunks []models.Chunk, vectors [][]float32) error {
	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, chunk := range chunks {
		_, err := tx.Exec(ctx, stmt,
			chunk.ChunkID,
			chunk.DocumentID,
			sanitizeUTF8(chunk.Text),
			chunk.ChunkIndex,
			chunk.StartChar,
			chunk.EndChar,
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ChunkID, err)
		}
	}

	return tx.Commit(ctx)
}

// Search returns the topK most similar chunks, descending by cosine
// similarity. When documentIDs is non-empty, results are restricted to
// those documents. An empty documentIDs leaves the search unrestricted
// across the whole index; callers needing strict scoping must pass an
// explicit set.
func (vs *VectorStore) Search(ctx context.Context, vector []float32, documentIDs []string, topK int) ([]models.RetrievedMatch, error) {
	if topK <= 0 {
		topK = vs.config.TopK
	}

	embedding := pgvector.NewVector(vector)

	var query string
	var args []any
	if len(documentIDs) > 0 {
		query = fmt.Sprintf(`
			SELECT id, document_id, content, chunk_index, 1 - (embedding <=> $1) AS score
			FROM %s
			WHERE document_id = ANY($2)
			ORDER BY embedding <=> $1
			LIMIT $3`, vs.config.TableName)
		args = []any{embedding, documentIDs, topK}
	} else {
		query = fmt.Sprintf(`
			SELECT id, document_id, content, chunk_index, 1 - (embedding <=> $1) AS score
			FROM %s
			ORDER BY embedding <=> $1
			LIMIT $2`, vs.config.TableName)
		args = []any{embedding, topK}
	}

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var matches []models.RetrievedMatch
	for rows.Next() {
		var m models.RetrievedMatch
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.Text, &m.ChunkIndex, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return matches, nil
}

// DeleteDocument removes every chunk of the given document. Deleting a
// document that was never indexed is a no-op.
func (vs *VectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", vs.config.TableName)
	if _, err := vs.pool.Exec(ctx, stmt, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks for document %s: %w", documentID, err)
	}
	return nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
