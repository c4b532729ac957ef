package chunker

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xhad/rag/internal/models"
)

type ChunkerConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Chunker splits document text into overlapping fixed-size windows.
// Offsets are byte positions into the source text and always refer to
// the untrimmed window, so a chunk can be traced back to its origin
// even after whitespace trimming.
type Chunker struct {
	config ChunkerConfig
}

func NewWithConfig(config ChunkerConfig) (*Chunker, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if config.ChunkSize <= config.ChunkOverlap {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", config.ChunkOverlap, config.ChunkSize)
	}

	return &Chunker{config: config}, nil
}

// Chunk splits text into windows of ChunkSize bytes overlapping by
// ChunkOverlap. Window zero advances a full ChunkSize; every later
// window advances ChunkSize-ChunkOverlap from a start backed up by the
// overlap. Windows that trim down to nothing are skipped without
// breaking the scan. Empty or whitespace-only input yields no chunks.
func (c *Chunker) Chunk(documentID, text string) []models.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []models.Chunk
	start := 0
	chunkIndex := 0

	for start < len(text) {
		var end int
		if start == 0 {
			end = min(start+c.config.ChunkSize, len(text))
		} else {
			end = min(start+c.config.ChunkSize-c.config.ChunkOverlap, len(text))
		}

		chunkText := strings.TrimSpace(text[start:end])
		if chunkText != "" {
			chunks = append(chunks, models.Chunk{
				ChunkID:    uuid.NewString(),
				DocumentID: documentID,
				Text:       chunkText,
				ChunkIndex: chunkIndex,
				StartChar:  start,
				EndChar:    end,
			})
			chunkIndex++
		}

		if end >= len(text) {
			break
		}

		if chunkIndex > 0 {
			start = end - c.config.ChunkOverlap
		} else {
			start = end
		}
	}

	return chunks
}

// ChunkAll chunks several documents, keyed by document id.
func (c *Chunker) ChunkAll(documents map[string]string) []models.Chunk {
	var all []models.Chunk
	for docID, text := range documents {
		all = append(all, c.Chunk(docID, text)...)
	}
	return all
}
