package llm

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/tazune/internal/models"
)

const analyzerSystemPrompt = `Analyze the user's query to a documentation assistant. Respond with a JSON object only, no prose:
{"intent": one of "search_docs", "troubleshoot", "how_to", "api_reference", "general", "entities": array of key technical terms from the query, "confidence": number between 0 and 1}`

// Analyzer extracts intent, entities and a confidence estimate from a raw
// query. Analysis is advisory: any failure yields DefaultAnalysis rather
// than an error, so a broken analyzer never fails a query.
type Analyzer struct {
	client Client
	logger *zap.Logger
}

// NewAnalyzer creates an analyzer backed by client.
func NewAnalyzer(client Client, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{client: client, logger: logger}
}

// DefaultAnalysis is the fallback used when analysis fails.
func DefaultAnalysis() models.QueryAnalysis {
	return models.QueryAnalysis{
		Intent:     "search_docs",
		Entities:   []string{},
		Confidence: 0.5,
	}
}

// Analyze runs the analysis prompt and parses the result. It never fails:
// transport errors, malformed JSON, and out-of-range values all degrade to
// DefaultAnalysis.
func (a *Analyzer) Analyze(ctx context.Context, query string) models.QueryAnalysis {
	raw, err := a.client.Generate(ctx, []Message{
		{Role: RoleSystem, Content: analyzerSystemPrompt},
		{Role: RoleUser, Content: query},
	})
	if err != nil {
		a.logger.Warn("query analysis failed, using default", zap.Error(err))
		return DefaultAnalysis()
	}

	var analysis models.QueryAnalysis
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &analysis); err != nil {
		a.logger.Warn("query analysis returned malformed JSON, using default", zap.Error(err))
		return DefaultAnalysis()
	}
	if analysis.Intent == "" {
		analysis.Intent = "search_docs"
	}
	if analysis.Entities == nil {
		analysis.Entities = []string{}
	}
	if analysis.Confidence < 0 || analysis.Confidence > 1 {
		analysis.Confidence = 0.5
	}
	return analysis
}

// stripCodeFence removes a surrounding markdown code fence, which some
// models add around JSON output despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
