package process

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/bookvoice/internal/audio"
	"github.com/dgallion1/bookvoice/internal/chunker"
	"github.com/dgallion1/bookvoice/internal/document"
	"github.com/dgallion1/bookvoice/internal/subtitle"
)

// MissingChunkError reports a gap in a chapter's chunk sequence. A
// partial chapter must not silently merge into a shorter file.
type MissingChunkError struct {
	Dir   string
	Index int
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("chapter %s is missing chunk %d", e.Dir, e.Index)
}

// Merger concatenates a chapter's chunk artifacts into one audio
// stream per chapter.
type Merger struct {
	Format string
	Log    *slog.Logger

	// Captions maps a chapter directory basename to the chapter's chunk
	// texts in chunk order. When set, MergeAll writes an SRT caption
	// track next to each merged chapter file, timed from the chunk
	// artifact durations.
	Captions map[string][]string
}

func NewMerger(format string, log *slog.Logger) *Merger {
	if format == "" {
		format = "wav"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Merger{Format: format, Log: log}
}

// chunkAudio is one decoded chunk artifact.
type chunkAudio struct {
	index   int
	samples []float32
	rate    int
}

// readChapter decodes a chapter directory's chunks in ascending index
// order. The index range must be contiguous from 1; a sample-rate
// mismatch only drops the offending chunk.
func (m *Merger) readChapter(dir string) ([]chunkAudio, error) {
	indices, err := chunkIndices(dir, m.Format)
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("chapter %s has no chunk artifacts", dir)
	}
	for i, idx := range indices {
		if idx != i+1 {
			return nil, &MissingChunkError{Dir: dir, Index: i + 1}
		}
	}

	var chunks []chunkAudio
	rate := 0
	for _, idx := range indices {
		path := filepath.Join(dir, ChunkFileName(idx, m.Format))
		s, r, err := audio.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read chunk %d: %w", idx, err)
		}
		if rate == 0 {
			rate = r
		}
		if r != rate {
			m.Log.Warn("sample rate mismatch, skipping chunk",
				"chunk", path, "rate", r, "expected", rate)
			continue
		}
		chunks = append(chunks, chunkAudio{index: idx, samples: s, rate: r})
	}
	return chunks, nil
}

// MergeChapter reads a chapter directory's chunks in ascending index
// order and concatenates their samples. The index range must be
// contiguous from 1; a sample-rate mismatch only skips the offending
// chunk.
func (m *Merger) MergeChapter(dir string) ([]float32, int, error) {
	chunks, err := m.readChapter(dir)
	if err != nil {
		return nil, 0, err
	}
	samples, rate := flattenChunks(chunks)
	if len(samples) == 0 {
		return nil, 0, fmt.Errorf("chapter %s merged to zero samples", dir)
	}
	return samples, rate, nil
}

func flattenChunks(chunks []chunkAudio) ([]float32, int) {
	var samples []float32
	rate := 0
	for _, c := range chunks {
		samples = append(samples, c.samples...)
		rate = c.rate
	}
	return samples, rate
}

// MergeAll merges every chapter directory under root, writing one
// audio file per chapter next to the chapter directories. It returns
// the written paths; chapters that fail to merge are logged and
// counted in the returned error.
func (m *Merger) MergeAll(root string) ([]string, error) {
	dirs, err := chapterDirs(root)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no chapter directories under %s", root)
	}

	used := make(map[string]bool)
	var written []string
	failed := 0
	for _, dir := range dirs {
		chunks, err := m.readChapter(dir)
		if err != nil {
			m.Log.Error("chapter merge failed", "dir", dir, "error", err)
			failed++
			continue
		}
		samples, rate := flattenChunks(chunks)
		if len(samples) == 0 {
			m.Log.Error("chapter merge failed", "dir", dir,
				"error", fmt.Errorf("chapter %s merged to zero samples", dir))
			failed++
			continue
		}

		name := mergedName(dir, used)
		out := filepath.Join(root, name+"."+strings.ToLower(m.Format))
		if err := audio.WriteFile(out, samples, rate, m.Format); err != nil {
			m.Log.Error("writing merged chapter failed", "path", out, "error", err)
			failed++
			continue
		}
		m.Log.Info("merged chapter", "path", out, "seconds", audio.Duration(samples, rate))
		written = append(written, out)

		if texts := m.Captions[filepath.Base(dir)]; len(texts) > 0 {
			srtPath := strings.TrimSuffix(out, filepath.Ext(out)) + ".srt"
			if err := writeCaptions(srtPath, chunks, texts); err != nil {
				m.Log.Warn("writing caption track failed", "path", srtPath, "error", err)
			}
		}
	}
	if failed > 0 {
		return written, fmt.Errorf("%d of %d chapters failed to merge", failed, len(dirs))
	}
	return written, nil
}

// CaptionsFor splits chapters into the same chunks synthesis used and
// keys them by chapter directory, ready for Merger.Captions. The chunk
// config must match the one the artifacts were produced with.
func CaptionsFor(chapters []document.Chapter, cfg chunker.Config) map[string][]string {
	caps := make(map[string][]string, len(chapters))
	for _, ch := range chapters {
		caps[ChapterDirName(ch.Order)] = chunker.Split(ch.Content, cfg)
	}
	return caps
}

// writeCaptions writes one SRT cue per chunk, timed end to end from
// the chunk artifact durations. Chunks dropped during the merge are
// absent here too, keeping cue times aligned with the merged audio.
func writeCaptions(path string, chunks []chunkAudio, texts []string) error {
	var track subtitle.Track
	for _, c := range chunks {
		text := ""
		if c.index-1 < len(texts) {
			text = texts[c.index-1]
		}
		d := time.Duration(audio.Duration(c.samples, c.rate) * float64(time.Second))
		track.Append(text, d)
	}
	return subtitle.WriteSRTFile(path, track.Cues())
}

// mergedName picks the output basename for a chapter: the sanitized
// title from info.txt, or the directory name when the title is empty
// or already taken.
func mergedName(dir string, used map[string]bool) string {
	name := SafeTitle(readInfoTitle(dir))
	if name == "" || used[name] {
		name = filepath.Base(dir)
	}
	used[name] = true
	return name
}

// SafeTitle reduces a chapter title to a filesystem-safe basename:
// only alphanumerics, spaces, hyphens, and underscores survive, with
// whitespace collapsed.
func SafeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// chunkIndices returns the sorted 1-based indices of the chunk
// artifacts present in a chapter directory.
func chunkIndices(dir, format string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read chapter directory: %w", err)
	}
	suffix := "." + strings.ToLower(format)
	var indices []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "chunk_") || !strings.HasSuffix(name, suffix) {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(name, "chunk_"), suffix)
		idx, err := strconv.Atoi(num)
		if err != nil || idx < 1 {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}

// chapterDirs lists the chapter_NNN directories under root in order.
func chapterDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read output root: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "chapter_") {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
