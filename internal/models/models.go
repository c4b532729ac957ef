package models

// Chunk is a contiguous slice of a document's text, sized for embedding.
// Offsets are byte positions into the original text and refer to the
// untrimmed window; Text carries the trimmed content.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
}

// RetrievedMatch is a read-only projection of an indexed chunk plus the
// similarity score it earned for one query. Higher score means more relevant.
type RetrievedMatch struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
}

// Answer is the synthesizer's output together with the provider's
// token accounting for the call.
type Answer struct {
	Text            string
	TokensConsumed  int
	TokensGenerated int
}

// QueryRun records one execution of the query flow for metrics reporting.
type QueryRun struct {
	RunID           string  `json:"run_id"`
	AgentName       string  `json:"agent_name"`
	TokensConsumed  int     `json:"tokens_consumed"`
	TokensGenerated int     `json:"tokens_generated"`
	ResponseTimeMs  int64   `json:"response_time_ms"`
	ConfidenceScore float64 `json:"confidence_score"`
	Status          string  `json:"status"`
}

const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// IndexStatus is the per-document outcome of an indexing request.
type IndexStatus struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

const (
	IndexStatusSuccess = "success"
	IndexStatusFailed  = "failed"
)

// QueryResult is what a successful query flow returns to the caller.
type QueryResult struct {
	RunID           string  `json:"run_id"`
	Answer          string  `json:"answer"`
	TokensConsumed  int     `json:"tokens_consumed"`
	TokensGenerated int     `json:"tokens_generated"`
	ResponseTimeMs  int64   `json:"response_time_ms"`
	ConfidenceScore float64 `json:"confidence_score"`
}
