package document

// Chapter is a titled, ordered section of a source document.
type Chapter struct {
	Title   string // Never empty; synthesized as "Chapter N" when not discoverable.
	Content string // Raw extracted text.
	Order   int    // 1-based position within the document, strictly increasing.
}

// WordCount returns the number of whitespace-separated words in the content.
func (c Chapter) WordCount() int {
	n := 0
	inWord := false
	for _, r := range c.Content {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			inWord = false
		} else if !inWord {
			inWord = true
			n++
		}
	}
	return n
}
