package ingest

import (
	"strings"
	"testing"
)

func TestProcessMarkdown(t *testing.T) {
	p := NewProcessor()
	content := "# Deployment Guide\n\nRun **make deploy** to ship.\n\n- step one\n- step two\n\nSee [the wiki](https://wiki.example.com) for more."
	got := p.ProcessMarkdown("guide.md", content)

	if got.Title != "Deployment Guide" {
		t.Errorf("Title=%q", got.Title)
	}
	if strings.Contains(got.Content, "#") || strings.Contains(got.Content, "**") {
		t.Errorf("markdown syntax not cleaned: %q", got.Content)
	}
	if !strings.Contains(got.Content, "make deploy") {
		t.Errorf("bold text lost: %q", got.Content)
	}
	if !strings.Contains(got.Content, "the wiki") || strings.Contains(got.Content, "https://wiki.example.com") {
		t.Errorf("link not reduced to label: %q", got.Content)
	}
	if got.Metadata["file_type"] != "markdown" {
		t.Errorf("Metadata=%v", got.Metadata)
	}
}

func TestProcessMarkdown_TitleFallback(t *testing.T) {
	p := NewProcessor()
	got := p.ProcessMarkdown("notes.md", "no heading here")
	if got.Title != "notes" {
		t.Errorf("Title=%q", got.Title)
	}
}

func TestProcessJSON_JiraIssue(t *testing.T) {
	p := NewProcessor()
	content := `{
		"key": "OPS-42",
		"fields": {
			"summary": "Database connection pool exhausted",
			"status": {"name": "Resolved"},
			"priority": {"name": "High"},
			"issuetype": {"name": "Incident"},
			"description": "Connections leaked under load.",
			"resolution": {"name": "Fixed", "description": "Raised pool ceiling."}
		}
	}`
	got, err := p.ProcessJSON("export.json", content)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "OPS-42: Database connection pool exhausted" {
		t.Errorf("Title=%q", got.Title)
	}
	for _, want := range []string{"Issue: OPS-42", "Status: Resolved", "Priority: High", "Resolution: Fixed"} {
		if !strings.Contains(got.Content, want) {
			t.Errorf("content missing %q:\n%s", want, got.Content)
		}
	}
}

func TestProcessJSON_JiraExport(t *testing.T) {
	p := NewProcessor()
	content := `{"issues":[
		{"key":"A-1","fields":{"summary":"First"}},
		{"key":"A-2","fields":{"summary":"Second"}}
	]}`
	got, err := p.ProcessJSON("dump.json", content)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Jira Issues Export" {
		t.Errorf("Title=%q", got.Title)
	}
	if !strings.Contains(got.Content, "Issue: A-1") || !strings.Contains(got.Content, "Issue: A-2") {
		t.Errorf("content=%q", got.Content)
	}
}

func TestProcessJSON_Generic(t *testing.T) {
	p := NewProcessor()
	got, err := p.ProcessJSON("config.json", `{"region":"eu-west-1"}`)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "config" {
		t.Errorf("Title=%q", got.Title)
	}
	if !strings.Contains(got.Content, `"region"`) {
		t.Errorf("content=%q", got.Content)
	}
}

func TestProcessJSON_Malformed(t *testing.T) {
	p := NewProcessor()
	if _, err := p.ProcessJSON("bad.json", "{not json"); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestProcessRepoFile(t *testing.T) {
	p := NewProcessor()
	got := p.ProcessRepoFile("# Readme\ncontent", "docs/README.md", "org/repo")
	if got.Title != "org/repo/docs/README.md" {
		t.Errorf("Title=%q", got.Title)
	}
	if got.Metadata["repository"] != "org/repo" {
		t.Errorf("Metadata=%v", got.Metadata)
	}
}

func TestProcessConfluencePage(t *testing.T) {
	p := NewProcessor()
	got := p.ProcessConfluencePage(&ConfluencePage{
		ID:    "123",
		Title: "Rate Limiting Guide",
		Body:  "<p>Use a &quot;token bucket&quot; &amp; back off.</p>",
	})
	if got.Title != "Rate Limiting Guide" {
		t.Errorf("Title=%q", got.Title)
	}
	if got.Content != `Use a "token bucket" & back off.` {
		t.Errorf("Content=%q", got.Content)
	}
	if got.Metadata["page_id"] != "123" {
		t.Errorf("Metadata=%v", got.Metadata)
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML("<div>a&nbsp;&lt;b&gt;   c</div>")
	if got != "a <b> c" {
		t.Errorf("got %q", got)
	}
}

func TestCleanMarkdown_NumberedLists(t *testing.T) {
	got := CleanMarkdown("1. first\n2. second")
	if strings.Contains(got, "1.") || !strings.Contains(got, "first") {
		t.Errorf("got %q", got)
	}
}
