package extractor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/bookvoice/internal/document"
)

// PDF extracts chapters from a PDF. The document outline (bookmarks) is
// the primary source; without one, headings are inferred from font
// sizes, and as a last resort the whole text becomes a single chapter.
type PDF struct {
	opts Options
}

func (p *PDF) Extract(path string) ([]document.Chapter, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	chapters := p.chaptersFromOutline(reader)
	if len(chapters) == 0 {
		p.opts.Log.Debug("no usable pdf outline, scanning for headings")
		chapters = p.chaptersFromHeadings(reader)
	}
	if len(chapters) == 0 {
		text := strings.TrimSpace(allPageText(reader, 1, reader.NumPage()))
		if text == "" {
			return nil, ErrNoChapters
		}
		chapters = []document.Chapter{{Title: "Chapter 1", Content: text, Order: 1}}
	}
	return chapters, nil
}

// outlineMark is one top-level bookmark with its resolved start page.
type outlineMark struct {
	title string
	page  int
}

// chaptersFromOutline walks the top-level outline chain. Each bookmark
// claims the pages up to the next bookmark's start page.
func (p *PDF) chaptersFromOutline(reader *pdflib.Reader) []document.Chapter {
	outlines := reader.Trailer().Key("Root").Key("Outlines")
	if outlines.IsNull() {
		return nil
	}

	// Destination arrays reference page objects; index them so a
	// destination can be mapped back to a page number.
	pageIndex := make(map[string]int, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		pg := reader.Page(i)
		if pg.V.IsNull() {
			continue
		}
		pageIndex[pg.V.String()] = i
	}

	var marks []outlineMark
	for item := outlines.Key("First"); !item.IsNull(); item = item.Key("Next") {
		title := cleanOutlineTitle(item.Key("Title").Text())
		page, ok := destinationPage(item, pageIndex)
		if !ok || title == "" {
			continue
		}
		marks = append(marks, outlineMark{title: title, page: page})
	}
	if len(marks) == 0 {
		return nil
	}

	sort.SliceStable(marks, func(i, j int) bool { return marks[i].page < marks[j].page })

	// Multiple bookmarks can point at the same page (part title plus
	// chapter title). Keep the first one per page.
	deduped := marks[:0]
	for _, m := range marks {
		if len(deduped) > 0 && deduped[len(deduped)-1].page == m.page {
			continue
		}
		deduped = append(deduped, m)
	}
	marks = deduped

	var chapters []document.Chapter
	for i, m := range marks {
		if isFrontMatter(m.title) {
			continue
		}
		end := reader.NumPage()
		if i+1 < len(marks) {
			end = marks[i+1].page - 1
		}
		text := strings.TrimSpace(allPageText(reader, m.page, end))
		if len(text) < p.opts.MinChapterChars {
			p.opts.Log.Debug("skipping short outline chapter", "title", m.title, "chars", len(text))
			continue
		}
		chapters = append(chapters, document.Chapter{
			Title:   m.title,
			Content: text,
			Order:   len(chapters) + 1,
		})
	}
	return chapters
}

// destinationPage resolves a bookmark's destination to a page number.
// Named destinations are not resolved.
func destinationPage(item pdflib.Value, pageIndex map[string]int) (int, bool) {
	dest := item.Key("Dest")
	if dest.IsNull() {
		dest = item.Key("A").Key("D")
	}
	if dest.Kind() != pdflib.Array || dest.Len() == 0 {
		return 0, false
	}
	page, ok := pageIndex[dest.Index(0).String()]
	return page, ok
}

// cleanOutlineTitle strips the zero-width and control characters that
// PDF producers like to embed in bookmark titles.
func cleanOutlineTitle(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff':
			continue
		}
		if r < ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func allPageText(reader *pdflib.Reader, first, last int) string {
	var buf strings.Builder
	for i := first; i <= last && i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(text)
	}
	return buf.String()
}

// pdfLine is one visual line of text with its dominant font size.
type pdfLine struct {
	text string
	size float64
}

// chaptersFromHeadings infers chapter boundaries from font sizes: a
// short line noticeably larger than the body text starts a chapter.
func (p *PDF) chaptersFromHeadings(reader *pdflib.Reader) []document.Chapter {
	var lines []pdfLine
	sizeWeight := make(map[float64]int)

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()

		var cur strings.Builder
		var curSize float64
		lastY := math.NaN()
		flush := func() {
			if text := strings.TrimSpace(cur.String()); text != "" {
				lines = append(lines, pdfLine{text: text, size: curSize})
				sizeWeight[curSize] += len(text)
			}
			cur.Reset()
			curSize = 0
		}
		for _, t := range content.Text {
			if !math.IsNaN(lastY) && math.Abs(t.Y-lastY) > 0.5 {
				flush()
			}
			lastY = t.Y
			cur.WriteString(t.S)
			if t.FontSize > curSize {
				curSize = t.FontSize
			}
		}
		flush()
	}

	var bodySize float64
	var bodyWeight int
	for size, weight := range sizeWeight {
		if weight > bodyWeight {
			bodySize, bodyWeight = size, weight
		}
	}
	return chaptersFromLines(lines, bodySize, p.opts.MinChapterChars)
}

// chaptersFromLines splits annotated lines into chapters at heading
// lines. A heading is a short line at least 20% larger than body text.
func chaptersFromLines(lines []pdfLine, bodySize float64, minChars int) []document.Chapter {
	isHeading := func(l pdfLine) bool {
		return bodySize > 0 && l.size >= bodySize*1.2 && len(strings.Fields(l.text)) <= 12
	}

	var chapters []document.Chapter
	var title string
	var body []string
	flush := func() {
		content := strings.TrimSpace(strings.Join(body, "\n"))
		body = nil
		if title == "" || len(content) < minChars || isFrontMatter(title) {
			title = ""
			return
		}
		chapters = append(chapters, document.Chapter{
			Title:   fmt.Sprintf("Chapter %d_%s", len(chapters)+1, title),
			Content: content,
			Order:   len(chapters) + 1,
		})
		title = ""
	}

	for _, l := range lines {
		if isHeading(l) {
			flush()
			title = l.text
			continue
		}
		body = append(body, l.text)
	}
	flush()
	return chapters
}
