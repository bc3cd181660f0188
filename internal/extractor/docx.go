package extractor

import (
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/bookvoice/internal/document"
)

// Docx splits a Word document into chapters at Heading 1/2 paragraphs.
type Docx struct {
	opts Options
}

func (d *Docx) Extract(path string) ([]document.Chapter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat docx: %w", err)
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	var chapters []document.Chapter
	var title string
	var body []string
	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n\n"))
		body = nil
		if content == "" {
			title = ""
			return
		}
		if title == "" {
			title = fmt.Sprintf("Chapter %d", len(chapters)+1)
		}
		if isFrontMatter(title) {
			title = ""
			return
		}
		chapters = append(chapters, document.Chapter{
			Title:   title,
			Content: content,
			Order:   len(chapters) + 1,
		})
		title = ""
	}

	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		level := docxHeadingLevel(para)
		text := docxParagraphText(para)
		if text == "" {
			continue
		}
		if level >= 1 && level <= 2 {
			flush()
			title = text
			continue
		}
		body = append(body, text)
	}
	flush()

	if len(chapters) == 0 {
		return nil, ErrNoChapters
	}
	return chapters, nil
}

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	if !strings.HasPrefix(style, "heading") {
		return 0
	}
	switch strings.TrimPrefix(style, "heading") {
	case "1":
		return 1
	case "2":
		return 2
	case "3":
		return 3
	case "4":
		return 4
	case "5":
		return 5
	case "6":
		return 6
	}
	return 0
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
