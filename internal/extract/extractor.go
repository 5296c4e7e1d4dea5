// Package extract provides text extraction from various document formats.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedType is returned for file formats the extractor cannot
// handle. During batch ingestion this fails the item, not the batch.
var ErrUnsupportedType = errors.New("unsupported file type")

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
// Plain text formats (.txt, .md, .rst, .json) are returned as-is (UTF-8
// validated). PDF, DOCX, Excel, PPTX, ODP, and ODS are parsed from the
// binary format. Unknown extensions yield ErrUnsupportedType.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx", ".odt", ".rtf":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".pptx":
		return extractPPTX(content)
	case ".odp":
		return extractODP(content)
	case ".ods":
		return extractODS(content)
	case ".txt", ".md", ".markdown", ".rst", ".json":
		return extractPlain(content)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
}

// Supported reports whether the extractor handles files with the given
// extension (leading dot included).
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".odt", ".rtf", ".xlsx", ".pptx", ".odp", ".ods",
		".txt", ".md", ".markdown", ".rst", ".json":
		return true
	}
	return false
}
