// Package cli provides CLI utilities for Tazune.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/tazune/internal/models"
	"github.com/hyperjump/tazune/pkg/utils"
)

// OutputFormat is the format for CLI output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteAnswer writes a RAG response to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteAnswer(w io.Writer, response *models.RAGResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		writeAnswerText(w, response)
		return nil
	}
}

func writeAnswerText(w io.Writer, response *models.RAGResponse) {
	fmt.Fprintf(w, "\n%s\n", response.Answer)
	if len(response.Sources) > 0 {
		fmt.Fprintf(w, "\n--- Sources ---\n")
		for i, src := range response.Sources {
			fmt.Fprintf(w, "%d. %s (%s, relevance %.1f%%)\n", i+1, src.Title, src.Type, src.Relevance*100)
			if src.URL != "" {
				fmt.Fprintf(w, "   %s\n", src.URL)
			}
			if src.Snippet != "" {
				fmt.Fprintf(w, "   %s\n", utils.Truncate(src.Snippet, 200))
			}
		}
	}
	fmt.Fprintf(w, "\nConfidence: %.0f%% | %dms\n", response.Confidence*100, response.QueryTime)
}

// PrintAnswer prints a RAG response to stdout in text format.
func PrintAnswer(response *models.RAGResponse) {
	_ = WriteAnswer(os.Stdout, response, OutputText)
}

// WriteJobs writes ingestion jobs to w in the given format.
func WriteJobs(w io.Writer, jobs []models.IngestionJob, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs.")
		return nil
	}
	for _, job := range jobs {
		fmt.Fprintf(w, "%s  %-14s %-10s %3d%%  %d/%d items",
			job.ID, job.Kind, job.Status, job.Progress, job.ProcessedItems, job.TotalItems)
		if len(job.Errors) > 0 {
			fmt.Fprintf(w, "  (%d errors)", len(job.Errors))
		}
		fmt.Fprintln(w)
		for _, e := range job.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}
	return nil
}
