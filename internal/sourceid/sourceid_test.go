package sourceid

import (
	"strings"
	"testing"
)

func TestFileDocID_Stable(t *testing.T) {
	a := FileDocID("/docs/runbook.md")
	b := FileDocID("/docs/../docs/runbook.md")
	if a != b {
		t.Errorf("cleaned paths should match: %s != %s", a, b)
	}
	if !strings.HasPrefix(a, "file:") {
		t.Errorf("expected file: prefix, got %s", a)
	}
}

func TestFileDocID_Distinct(t *testing.T) {
	if FileDocID("/docs/a.md") == FileDocID("/docs/b.md") {
		t.Error("different paths must yield different IDs")
	}
}

func TestRemoteDocID(t *testing.T) {
	gh := RemoteDocID("github", "org/repo/docs/setup.md")
	cf := RemoteDocID("confluence", "12345")
	if !strings.HasPrefix(gh, "github:") || !strings.HasPrefix(cf, "confluence:") {
		t.Errorf("IDs should carry source prefix: %s, %s", gh, cf)
	}
	if RemoteDocID("github", "x") == RemoteDocID("confluence", "x") {
		t.Error("same ref under different sources must differ")
	}
}
