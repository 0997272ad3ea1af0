package types

// SourceJSON is the wire form of a citation.
type SourceJSON struct {
	DocumentName string `json:"document_name"`
	PageNumber   *int   `json:"page_number,omitempty"`
	ChunkText    string `json:"chunk_text,omitempty"`
}

// QueryResponse is returned by the question-answering mode.
type QueryResponse struct {
	Answer          string       `json:"answer"`
	Sources         []SourceJSON `json:"sources"`
	ConfidenceScore *float64     `json:"confidence_score,omitempty"`
}

// ChunkJSON is the wire form of a retrieved chunk.
type ChunkJSON struct {
	Content      string         `json:"content"`
	DocumentName string         `json:"document_name"`
	PageNumber   *int           `json:"page_number,omitempty"`
	Metadata     map[string]any `json:"metadata"`
}

// RetrievalResponse is returned by the retrieval-only mode.
type RetrievalResponse struct {
	Query       string      `json:"query"`
	Chunks      []ChunkJSON `json:"chunks"`
	TotalChunks int         `json:"total_chunks"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ErrorResponse is the uniform error payload of both modes.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
