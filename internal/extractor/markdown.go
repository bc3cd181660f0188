package extractor

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/dgallion1/bookvoice/internal/document"
)

// Markdown splits a Markdown document into chapters at h1/h2 headings.
type Markdown struct {
	opts Options
}

func (m *Markdown) Extract(path string) ([]document.Chapter, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markdown file: %w", err)
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

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

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level <= 2 {
			flush()
			title = strings.TrimSpace(string(h.Text(src)))
			continue
		}
		if t := markdownText(n, src); t != "" {
			body = append(body, t)
		}
	}
	flush()

	if len(chapters) == 0 {
		return nil, ErrNoChapters
	}
	return chapters, nil
}

// markdownText flattens a goldmark AST node to plain text.
func markdownText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			buf.WriteString(markdownText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
