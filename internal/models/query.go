package models

import (
	"fmt"
	"strings"
)

// QueryRequest represents a question posed to the pipeline. Limit, when set,
// overrides the configured retrieval depth; Filters restricts retrieval to
// the given source types.
type QueryRequest struct {
	Query          string        `json:"query"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Limit          int           `json:"limit,omitempty"`
	Filters        *QueryFilters `json:"filters,omitempty"`
}

// QueryFilters narrows retrieval before the relevance threshold is applied.
type QueryFilters struct {
	SourceTypes []string `json:"source_types,omitempty"`
}

// Validate ensures the query has valid fields and normalizes the limit.
// A zero limit means "use the configured default".
func (q *QueryRequest) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	return nil
}

// QueryAnalysis is the structured interpretation of a user query produced
// by the language model before retrieval.
type QueryAnalysis struct {
	Intent     string   `json:"intent"`
	Entities   []string `json:"entities"`
	Confidence float64  `json:"confidence"`
}
