package domain

import "strings"

// ValidateArticle checks an Article before it enters the ingestion pipeline.
func ValidateArticle(a Article) error {
	if strings.TrimSpace(a.ID) == "" {
		return NewValidationError("id", a.ID, ErrMissingID)
	}
	if strings.TrimSpace(a.Content) == "" {
		return NewValidationError("content", "", ErrEmptyContent)
	}
	return nil
}
