package models

// QueryMode tags how a response was produced, so consumers can assert
// provenance without parsing prose.
type QueryMode string

const (
	ModeIndexed  QueryMode = "indexed"  // answered from the curated vector index
	ModeFallback QueryMode = "fallback" // answered via external web search
	ModeRefusal  QueryMode = "refusal"  // no citable source anywhere; honest refusal
)

// QueryRequest is the immutable input at the query boundary.
type QueryRequest struct {
	Question      string `json:"question"`
	Jurisdiction  string `json:"jurisdiction"`
	Asset         string `json:"asset"`
	DocumentClass string `json:"document_class"`
	Lang          string `json:"lang"`
	TraceID       string `json:"trace_id"`
}

// QueryResponse is the structured result of one query. When Mode is
// indexed or fallback every citation originates from a real retrieved
// source; citations are never synthesized.
type QueryResponse struct {
	AnswerText string     `json:"answer_text"`
	Citations  []Citation `json:"citations"`
	Mode       QueryMode  `json:"mode"`
	ElapsedMS  int64      `json:"elapsed_ms"`
	TraceID    string     `json:"trace_id"`
}
