package chunker

import "strings"

// DefaultTargetSize is the default chunk size in characters.
const DefaultTargetSize = 1000

// Config controls chunking behavior.
type Config struct {
	TargetSize int // Target chunk size in characters.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{TargetSize: DefaultTargetSize}
}

// Split breaks text into speakable chunks at sentence boundaries.
//
// Sentences are delimited by the literal period character. This is a
// deliberately simplistic boundary heuristic: it does not handle
// abbreviations, decimals, or non-Latin punctuation. Callers needing
// semantic sentence boundaries must pre-process.
//
// Sentences that fit within the target size are greedily packed into
// chunks. A sentence longer than the target is split on whitespace into
// word-packed pieces, each emitted as its own chunk. Chunk order always
// follows document order.
func Split(text string, cfg Config) []string {
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = DefaultTargetSize
	}

	sentences := strings.Split(strings.ReplaceAll(text, "\n", " "), ".")

	var chunks []string
	var current []string
	currentSize := 0

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		sentence += "."
		sentenceSize := len(sentence)

		// A single sentence that exceeds the target cannot be used whole:
		// split it into word-packed pieces, each its own chunk. Flush the
		// pending buffer first so chunk order follows document order.
		if sentenceSize > cfg.TargetSize {
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, " "))
				current = current[:0]
				currentSize = 0
			}
			for _, piece := range PackWords(sentence, cfg.TargetSize) {
				chunks = append(chunks, strings.TrimSpace(piece)+".")
			}
			continue
		}

		if currentSize+sentenceSize > cfg.TargetSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = current[:0]
			currentSize = 0
		}

		current = append(current, sentence)
		currentSize += sentenceSize
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

// PackWords splits text on whitespace and greedily packs words into
// pieces no larger than limit characters. A piece only exceeds the limit
// when a single word alone does, in which case the piece is that one
// word. Pieces preserve word order.
func PackWords(text string, limit int) []string {
	var pieces []string
	var current []string
	currentSize := 0

	for _, word := range strings.Fields(text) {
		wordSize := len(word) + 1 // +1 for the joining space
		if currentSize+wordSize > limit {
			if len(current) > 0 {
				pieces = append(pieces, strings.Join(current, " "))
			}
			current = []string{word}
			currentSize = wordSize
		} else {
			current = append(current, word)
			currentSize += wordSize
		}
	}

	if len(current) > 0 {
		pieces = append(pieces, strings.Join(current, " "))
	}

	return pieces
}
