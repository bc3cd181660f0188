package extractor

import (
	"fmt"
	"os"

	"github.com/dgallion1/bookvoice/internal/document"
)

// Text treats the entire input file as a single chapter.
type Text struct{}

func (t *Text) Extract(path string) ([]document.Chapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text file: %w", err)
	}
	return []document.Chapter{{
		Title:   "Chapter 1",
		Content: string(data),
		Order:   1,
	}}, nil
}
