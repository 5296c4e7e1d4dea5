package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrEmptyDocument is returned when a source item yields no text at all;
// the item is recorded as failed and the batch continues.
var ErrEmptyDocument = errors.New("document has no content")

// ProcessedDocument is the normalized output of a source processor: a title,
// plain text ready for chunking, and source-specific metadata.
type ProcessedDocument struct {
	Title    string
	Content  string
	Metadata map[string]interface{}
}

// Processor normalizes raw source payloads (markdown files, Jira exports,
// Confluence pages, repository docs) into plain-text documents.
type Processor struct{}

// NewProcessor returns a new Processor.
func NewProcessor() *Processor {
	return &Processor{}
}

var (
	mdHeadingRe     = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdFirstTitleRe  = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	mdBoldRe        = regexp.MustCompile(`\*\*(.*?)\*\*`)
	mdItalicRe      = regexp.MustCompile(`\*(.*?)\*`)
	mdCodeRe        = regexp.MustCompile("`{1,3}(.*?)`{1,3}")
	mdLinkRe        = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	mdBulletRe      = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	mdNumListRe     = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	htmlTagRe       = regexp.MustCompile(`<[^>]*>`)
	whitespaceRunRe = regexp.MustCompile(`\s+`)
)

// ProcessMarkdown extracts the title from the first level-one heading (or
// falls back to the file name) and strips markdown syntax from the body.
func (p *Processor) ProcessMarkdown(name, content string) *ProcessedDocument {
	title := stemOf(name)
	if m := mdFirstTitleRe.FindStringSubmatch(content); m != nil {
		title = strings.TrimSpace(m[1])
	}
	return &ProcessedDocument{
		Title:   title,
		Content: CleanMarkdown(content),
		Metadata: map[string]interface{}{
			"file_type": "markdown",
			"size":      len(content),
		},
	}
}

// ProcessText wraps plain text with the file name as title.
func (p *Processor) ProcessText(name, content string) *ProcessedDocument {
	return &ProcessedDocument{
		Title:   stemOf(name),
		Content: content,
		Metadata: map[string]interface{}{
			"file_type": "text",
			"size":      len(content),
		},
	}
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
		Priority struct {
			Name string `json:"name"`
		} `json:"priority"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Description string `json:"description"`
		Resolution  *struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"resolution"`
	} `json:"fields"`
	Changelog *struct {
		Histories []struct {
			Created string `json:"created"`
			Items   []struct {
				Field      string `json:"field"`
				FromString string `json:"fromString"`
				ToString   string `json:"toString"`
			} `json:"items"`
		} `json:"histories"`
	} `json:"changelog"`
}

// ProcessJSON handles JSON files: single Jira issues and Jira exports are
// rendered as readable issue summaries, anything else is indented verbatim.
func (p *Processor) ProcessJSON(name, content string) (*ProcessedDocument, error) {
	metadata := map[string]interface{}{
		"file_type": "json",
		"size":      len(content),
	}

	var single jiraIssue
	if err := json.Unmarshal([]byte(content), &single); err == nil && single.Key != "" && single.Fields.Summary != "" {
		return &ProcessedDocument{
			Title:    fmt.Sprintf("%s: %s", single.Key, single.Fields.Summary),
			Content:  renderJiraIssue(&single),
			Metadata: metadata,
		}, nil
	}

	var export struct {
		Issues []jiraIssue `json:"issues"`
	}
	if err := json.Unmarshal([]byte(content), &export); err == nil && len(export.Issues) > 0 {
		parts := make([]string, 0, len(export.Issues))
		for i := range export.Issues {
			parts = append(parts, renderJiraIssue(&export.Issues[i]))
		}
		return &ProcessedDocument{
			Title:    "Jira Issues Export",
			Content:  strings.Join(parts, "\n\n"),
			Metadata: metadata,
		}, nil
	}

	var generic interface{}
	if err := json.Unmarshal([]byte(content), &generic); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	pretty, err := json.MarshalIndent(generic, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render JSON: %w", err)
	}
	return &ProcessedDocument{
		Title:    stemOf(name),
		Content:  string(pretty),
		Metadata: metadata,
	}, nil
}

func renderJiraIssue(issue *jiraIssue) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Issue: %s\n", issue.Key)
	fmt.Fprintf(&sb, "Summary: %s\n", orNA(issue.Fields.Summary))
	fmt.Fprintf(&sb, "Status: %s\n", orNA(issue.Fields.Status.Name))
	fmt.Fprintf(&sb, "Priority: %s\n", orNA(issue.Fields.Priority.Name))
	fmt.Fprintf(&sb, "Issue Type: %s\n", orNA(issue.Fields.IssueType.Name))
	if issue.Fields.Description != "" {
		fmt.Fprintf(&sb, "\nDescription:\n%s\n", issue.Fields.Description)
	}
	if res := issue.Fields.Resolution; res != nil {
		fmt.Fprintf(&sb, "\nResolution: %s\n", res.Name)
		if res.Description != "" {
			fmt.Fprintf(&sb, "Resolution Description: %s\n", res.Description)
		}
	}
	if issue.Changelog != nil && len(issue.Changelog.Histories) > 0 {
		sb.WriteString("\nHistory:\n")
		for _, h := range issue.Changelog.Histories {
			changes := make([]string, 0, len(h.Items))
			for _, item := range h.Items {
				changes = append(changes, fmt.Sprintf("%s changed from %q to %q", item.Field, item.FromString, item.ToString))
			}
			fmt.Fprintf(&sb, "- %s: %s\n", h.Created, strings.Join(changes, ", "))
		}
	}
	return sb.String()
}

// ProcessRepoFile normalizes a documentation file fetched from a code
// repository. Title is "<repo>/<path>" so search results show provenance.
func (p *Processor) ProcessRepoFile(content, path, repo string) *ProcessedDocument {
	return &ProcessedDocument{
		Title:   repo + "/" + path,
		Content: CleanMarkdown(content),
		Metadata: map[string]interface{}{
			"file_type":  "github",
			"repository": repo,
			"filename":   path,
			"size":       len(content),
		},
	}
}

// ConfluencePage is the shape of a wiki page handed to the pipeline by the
// Confluence connector.
type ConfluencePage struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	SpaceKey string `json:"space_key,omitempty"`
	Author   string `json:"author,omitempty"`
	Modified string `json:"modified,omitempty"`
}

// ProcessConfluencePage strips storage-format HTML from a wiki page body.
func (p *Processor) ProcessConfluencePage(page *ConfluencePage) *ProcessedDocument {
	metadata := map[string]interface{}{
		"file_type": "confluence",
		"page_id":   page.ID,
		"size":      len(page.Body),
	}
	if page.SpaceKey != "" {
		metadata["space_key"] = page.SpaceKey
	}
	if page.Author != "" {
		metadata["author"] = page.Author
	}
	if page.Modified != "" {
		metadata["last_modified"] = page.Modified
	}
	return &ProcessedDocument{
		Title:    page.Title,
		Content:  StripHTML(page.Body),
		Metadata: metadata,
	}
}

// CleanMarkdown strips markdown syntax, keeping the readable text: headings
// lose their hashes, emphasis and code markers are dropped, links keep their
// label, list markers are removed.
func CleanMarkdown(content string) string {
	content = mdHeadingRe.ReplaceAllString(content, "")
	content = mdBoldRe.ReplaceAllString(content, "$1")
	content = mdItalicRe.ReplaceAllString(content, "$1")
	content = mdCodeRe.ReplaceAllString(content, "$1")
	content = mdLinkRe.ReplaceAllString(content, "$1")
	content = mdBulletRe.ReplaceAllString(content, "")
	content = mdNumListRe.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// StripHTML removes tags, decodes the common entities, and collapses
// whitespace.
func StripHTML(html string) string {
	text := htmlTagRe.ReplaceAllString(html, "")
	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
	text = replacer.Replace(text)
	return strings.TrimSpace(whitespaceRunRe.ReplaceAllString(text, " "))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// stemOf returns the file name without its extension.
func stemOf(name string) string {
	base := filepath.Base(name)
	if ext := filepath.Ext(base); ext != "" {
		return strings.TrimSuffix(base, ext)
	}
	if base == "." || base == "/" || base == "" {
		return "document"
	}
	return base
}
