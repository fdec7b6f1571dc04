package models

// IngestError records one document's failure without aborting the batch.
type IngestError struct {
	SourceURL string `json:"source_url"`
	Message   string `json:"message"`
}

// IngestReport summarizes one ingestion run. It is the only externally
// visible side effect of ingestion besides the vector store itself.
type IngestReport struct {
	Processed        int           `json:"processed"`
	SkippedDuplicate int           `json:"skipped_duplicate"`
	Errors           []IngestError `json:"errors"`
}
