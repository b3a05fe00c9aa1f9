package ingest

// RecordResult is the per-article outcome in an ingestion report.
type RecordResult struct {
	DocID  string `json:"doc_id"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// Report summarizes one ingestion run. Chunks that were absorbed as zero
// vectors by the embedding fallback are not distinguishable here; they are
// reported via logs only.
type Report struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Articles int            `json:"articles"`
	Chunks   int            `json:"chunks"`
	Records  []RecordResult `json:"records"`
}
