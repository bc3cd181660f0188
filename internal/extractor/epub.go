package extractor

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/bookvoice/internal/document"
)

// Epub extracts chapters from an EPUB container. The primary strategy
// walks the table of contents; when that yields nothing, every content
// document is scanned for chapter headings.
type Epub struct {
	opts Options
}

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Manifest struct {
		Items []epubItem `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type epubItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type ncxNavPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

type ncxDocument struct {
	NavPoints []ncxNavPoint `xml:"navMap>navPoint"`
}

// tocEntry is one flattened table-of-contents link.
type tocEntry struct {
	title    string
	file     string // Zip path of the target document.
	fragment string // In-page anchor, empty for whole-document entries.
}

func (e *Epub) Extract(epubPath string) ([]document.Chapter, error) {
	zr, err := zip.OpenReader(epubPath)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	opfPath, err := rootfilePath(files)
	if err != nil {
		return nil, err
	}
	opfDir := path.Dir(opfPath)

	var pkg epubPackage
	if err := unmarshalZipXML(files, opfPath, &pkg); err != nil {
		return nil, fmt.Errorf("parse opf: %w", err)
	}

	entries := e.tocEntries(files, pkg, opfDir)
	chapters := e.chaptersFromTOC(files, entries)

	if len(chapters) == 0 {
		e.opts.Log.Debug("no chapters found in TOC, scanning all documents")
		chapters = e.chaptersFromDocuments(files, pkg, opfDir)
	}
	if len(chapters) == 0 {
		return nil, ErrNoChapters
	}
	return chapters, nil
}

// chaptersFromTOC resolves each TOC entry to its text. Entries whose
// titles look like front matter are skipped; an entry with an in-page
// fragment only contributes the text up to the next entry's fragment.
func (e *Epub) chaptersFromTOC(files map[string]*zip.File, entries []tocEntry) []document.Chapter {
	var chapters []document.Chapter
	for i, entry := range entries {
		if isFrontMatter(entry.title) {
			continue
		}
		zf, ok := files[entry.file]
		if !ok {
			e.opts.Log.Warn("toc entry target missing", "title", entry.title, "file", entry.file)
			continue
		}
		doc, err := parseZipHTML(zf)
		if err != nil {
			e.opts.Log.Warn("skipping unparsable toc target", "file", entry.file, "error", err)
			continue
		}

		var text string
		if entry.fragment == "" {
			text = strings.TrimSpace(textContent(bodyOrDoc(doc)))
		} else {
			next := ""
			if i+1 < len(entries) && entries[i+1].file == entry.file {
				next = entries[i+1].fragment
			}
			text = e.fragmentText(doc, entry.fragment, next)
		}

		if text == "" {
			continue
		}
		chapters = append(chapters, document.Chapter{
			Title:   entry.title,
			Content: text,
			Order:   len(chapters) + 1,
		})
	}
	return chapters
}

// fragmentText collects text starting at the element carrying startID,
// stopping at the element carrying nextID or at the next chapter-like
// heading. When the anchor is itself a heading it is excluded from the
// content.
func (e *Epub) fragmentText(doc *html.Node, startID, nextID string) string {
	start := findByID(doc, startID)
	if start == nil {
		return ""
	}

	cur := start
	if lvl := headingLevel(start.Data); start.Type == html.ElementNode && lvl >= 1 && lvl <= 4 {
		cur = start.NextSibling
	}

	var parts []string
	for ; cur != nil; cur = cur.NextSibling {
		if nextID != "" && attr(cur, "id") == nextID {
			break
		}
		if cur.Type == html.ElementNode {
			if lvl := headingLevel(cur.Data); lvl >= 1 && lvl <= 3 &&
				containsKeyword(textContent(cur), e.opts.HeadingKeywords) {
				break
			}
		}
		if t := textContent(cur); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// chaptersFromDocuments is the fallback strategy: scan every content
// document, sorted by filename, for keyword headings. A document with
// no such headings becomes one chapter on its own.
func (e *Epub) chaptersFromDocuments(files map[string]*zip.File, pkg epubPackage, opfDir string) []document.Chapter {
	var docs []string
	for _, item := range pkg.Manifest.Items {
		if item.MediaType == "application/xhtml+xml" {
			docs = append(docs, resolveHref(opfDir, item.Href))
		}
	}
	sort.Strings(docs)

	var chapters []document.Chapter
	for _, name := range docs {
		zf, ok := files[name]
		if !ok {
			continue
		}
		doc, err := parseZipHTML(zf)
		if err != nil {
			e.opts.Log.Warn("skipping unparsable document", "file", name, "error", err)
			continue
		}
		chapters = e.scanDocument(doc, chapters)
	}
	return chapters
}

// scanDocument appends the chapters found in one content document.
func (e *Epub) scanDocument(doc *html.Node, chapters []document.Chapter) []document.Chapter {
	type section struct {
		title string
		parts []string
	}
	var sections []section
	var current *section

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav":
				return
			}
			if lvl := headingLevel(n.Data); lvl >= 1 && lvl <= 3 {
				text := textContent(n)
				if containsKeyword(text, e.opts.HeadingKeywords) {
					sections = append(sections, section{title: text})
					current = &sections[len(sections)-1]
					return
				}
			}
		}
		if n.Type == html.TextNode && current != nil {
			if t := strings.TrimSpace(n.Data); t != "" {
				current.parts = append(current.parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	body := bodyOrDoc(doc)
	walk(body)

	if len(sections) > 0 {
		for _, s := range sections {
			content := strings.TrimSpace(strings.Join(s.parts, "\n"))
			if content == "" {
				continue
			}
			chapters = append(chapters, document.Chapter{
				Title:   s.title,
				Content: content,
				Order:   len(chapters) + 1,
			})
		}
		return chapters
	}

	// No chapter headings at all: the whole document is one chapter.
	text := strings.TrimSpace(textContent(body))
	if text == "" {
		return chapters
	}
	title := firstTitle(doc)
	if title == "" {
		title = fmt.Sprintf("Chapter %d", len(chapters)+1)
	}
	if isFrontMatter(title) {
		return chapters
	}
	return append(chapters, document.Chapter{
		Title:   title,
		Content: text,
		Order:   len(chapters) + 1,
	})
}

// tocEntries flattens the table of contents, preferring the NCX and
// falling back to an EPUB3 nav document.
func (e *Epub) tocEntries(files map[string]*zip.File, pkg epubPackage, opfDir string) []tocEntry {
	for _, item := range pkg.Manifest.Items {
		if item.MediaType == "application/x-dtbncx+xml" || item.ID == pkg.Spine.Toc && pkg.Spine.Toc != "" {
			var ncx ncxDocument
			name := resolveHref(opfDir, item.Href)
			if err := unmarshalZipXML(files, name, &ncx); err != nil {
				e.opts.Log.Warn("unreadable ncx", "file", name, "error", err)
				continue
			}
			var entries []tocEntry
			var flatten func(points []ncxNavPoint)
			flatten = func(points []ncxNavPoint) {
				for _, p := range points {
					if src := strings.TrimSpace(p.Content.Src); src != "" {
						file, fragment, _ := strings.Cut(src, "#")
						entries = append(entries, tocEntry{
							title:    strings.TrimSpace(p.Label),
							file:     resolveHref(opfDir, file),
							fragment: fragment,
						})
					}
					flatten(p.Children)
				}
			}
			flatten(ncx.NavPoints)
			if len(entries) > 0 {
				return entries
			}
		}
	}

	for _, item := range pkg.Manifest.Items {
		if strings.Contains(item.Properties, "nav") {
			name := resolveHref(opfDir, item.Href)
			zf, ok := files[name]
			if !ok {
				continue
			}
			doc, err := parseZipHTML(zf)
			if err != nil {
				e.opts.Log.Warn("unreadable nav document", "file", name, "error", err)
				continue
			}
			if entries := navEntries(doc, opfDir); len(entries) > 0 {
				return entries
			}
		}
	}
	return nil
}

// navEntries pulls the link list out of an EPUB3 toc nav element.
func navEntries(doc *html.Node, opfDir string) []tocEntry {
	var entries []tocEntry
	var inTocNav func(*html.Node) bool
	inTocNav = func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "nav" &&
			(attr(n, "epub:type") == "toc" || attr(n, "role") == "doc-toc")
	}

	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attr(n, "href"); href != "" {
				file, fragment, _ := strings.Cut(href, "#")
				entries = append(entries, tocEntry{
					title:    textContent(n),
					file:     resolveHref(opfDir, file),
					fragment: fragment,
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}

	var find func(*html.Node)
	find = func(n *html.Node) {
		if inTocNav(n) {
			collect(n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	return entries
}

func rootfilePath(files map[string]*zip.File) (string, error) {
	var container epubContainer
	if err := unmarshalZipXML(files, "META-INF/container.xml", &container); err != nil {
		return "", fmt.Errorf("parse container.xml: %w", err)
	}
	if len(container.Rootfiles) == 0 || container.Rootfiles[0].FullPath == "" {
		return "", fmt.Errorf("epub container has no rootfile")
	}
	return container.Rootfiles[0].FullPath, nil
}

func unmarshalZipXML(files map[string]*zip.File, name string, v any) error {
	zf, ok := files[name]
	if !ok {
		return fmt.Errorf("missing %s", name)
	}
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	return xml.Unmarshal(data, v)
}

func parseZipHTML(zf *zip.File) (*html.Node, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return html.Parse(rc)
}

func resolveHref(opfDir, href string) string {
	if opfDir == "." || opfDir == "" {
		return href
	}
	return path.Join(opfDir, href)
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func attr(n *html.Node, key string) string {
	if n.Type != html.ElementNode {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(buf.String())
}

func findByID(n *html.Node, id string) *html.Node {
	if attr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func bodyOrDoc(doc *html.Node) *html.Node {
	var find func(*html.Node) *html.Node
	find = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.Data == "body" {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if b := find(c); b != nil {
				return b
			}
		}
		return nil
	}
	if body := find(doc); body != nil {
		return body
	}
	return doc
}

// firstTitle returns the first h1/h2/title text in the document.
func firstTitle(doc *html.Node) string {
	var find func(*html.Node) string
	find = func(n *html.Node) string {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "h1", "h2", "title":
				if t := textContent(n); t != "" {
					return t
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if t := find(c); t != "" {
				return t
			}
		}
		return ""
	}
	return find(doc)
}
