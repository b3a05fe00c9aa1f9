package semantic

// Document is a single similarity-search hit. Only the stored payload comes
// back; raw vectors are never returned in results.
type Document struct {
	ID         string            `json:"id"`
	Score      float32           `json:"score"`
	Text       string            `json:"text"`
	DocID      string            `json:"doc_id"`
	Title      string            `json:"doc_title"`
	Source     string            `json:"source"`
	ChunkIndex int               `json:"chunk_index"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// VectorRecord is the unit persisted in the index: a vector plus the chunk
// text and metadata payload. ID may be left empty; Upsert then assigns a
// collision-resistant one.
type VectorRecord struct {
	ID      string
	Vector  []float32
	Payload map[string]any // text, doc_id, doc_title, source, chunk_index, ...
}
