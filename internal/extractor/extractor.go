// Package extractor turns source documents (plain text, EPUB, PDF,
// Markdown, DOCX) into ordered chapters ready for chunking.
package extractor

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dgallion1/bookvoice/internal/document"
)

// ErrNoChapters is returned when both the primary and fallback
// strategies find nothing. Callers must treat it as terminal, not as an
// empty success.
var ErrNoChapters = errors.New("no chapters extracted from document")

// DefaultMinChapterChars is the minimum extracted-text length for a
// candidate chapter to be kept.
const DefaultMinChapterChars = 50

// Options tunes the extraction heuristics that used to be hardcoded:
// the chapter-heading keywords and the minimum chapter length.
type Options struct {
	MinChapterChars int
	HeadingKeywords []string
	Log             *slog.Logger
}

// DefaultOptions returns the historical defaults.
func DefaultOptions() Options {
	return Options{
		MinChapterChars: DefaultMinChapterChars,
		HeadingKeywords: []string{"chapter", "book"},
		Log:             slog.Default(),
	}
}

func (o Options) withDefaults() Options {
	if o.MinChapterChars <= 0 {
		o.MinChapterChars = DefaultMinChapterChars
	}
	if len(o.HeadingKeywords) == 0 {
		o.HeadingKeywords = []string{"chapter", "book"}
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	return o
}

// Extractor produces the ordered chapter sequence of one document.
type Extractor interface {
	Extract(path string) ([]document.Chapter, error)
}

// SupportedExtensions lists input formats this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".epub":     true,
	".pdf":      true,
	".md":       true,
	".markdown": true,
	".docx":     true,
}

// ForFile returns the appropriate extractor for a filename.
func ForFile(filename string, opts Options) (Extractor, error) {
	opts = opts.withDefaults()
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".txt":
		return &Text{}, nil
	case ".epub":
		return &Epub{opts: opts}, nil
	case ".pdf":
		return &PDF{opts: opts}, nil
	case ".md", ".markdown":
		return &Markdown{opts: opts}, nil
	case ".docx":
		return &Docx{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// frontMatterLabels are TOC titles excluded from chapter extraction.
var frontMatterLabels = map[string]bool{
	"copy":       true,
	"copyright":  true,
	"title page": true,
	"cover":      true,
}

// isFrontMatter reports whether a TOC title names a non-narrative
// section (cover, copyright, attribution line).
func isFrontMatter(title string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	return frontMatterLabels[t] || strings.HasPrefix(t, "by ")
}

// containsKeyword reports whether text contains any heading keyword,
// case-insensitively.
func containsKeyword(text string, keywords []string) bool {
	t := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}
