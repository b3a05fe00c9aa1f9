// Package domain defines the core data types and validation for the NewsDesk
// pipeline. It acts as the validation gate at pipeline entry points.
package domain

import "time"

// Article is a raw news article handed to the ingestion pipeline by the
// acquisition layer. Articles are immutable once submitted: the pipeline
// consumes them exactly once and does not retain them.
type Article struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Link     string            `json:"link,omitempty"`
	PubDate  time.Time         `json:"pub_date,omitzero"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Roles for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
