// Package subtitle builds SRT caption tracks from synthesized chunk
// timings, so a narration can be followed along in a player.
package subtitle

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cue is a single SRT entry with timing and text.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Duration returns how long the cue stays on screen.
func (c Cue) Duration() time.Duration {
	return c.End - c.Start
}

// Track accumulates cues as chunks are synthesized. Each appended chunk
// starts where the previous one ended.
type Track struct {
	cues   []Cue
	cursor time.Duration
}

// Append adds one cue for a chunk of the given audio duration.
func (t *Track) Append(text string, d time.Duration) {
	t.cues = append(t.cues, Cue{
		Index: len(t.cues) + 1,
		Start: t.cursor,
		End:   t.cursor + d,
		Text:  strings.TrimSpace(text),
	})
	t.cursor += d
}

// Advance moves the cursor without emitting a cue. Used when a chunk
// produced audio that should not be captioned, or for inserted silence.
func (t *Track) Advance(d time.Duration) {
	t.cursor += d
}

// Cues returns the accumulated cues in order.
func (t *Track) Cues() []Cue {
	return t.cues
}

// TotalDuration returns the end time of the track.
func (t *Track) TotalDuration() time.Duration {
	return t.cursor
}

// FormatSRT renders cues in SRT format.
func FormatSRT(cues []Cue) string {
	var b strings.Builder
	for i, cue := range cues {
		b.WriteString(strconv.Itoa(cue.Index))
		b.WriteString("\n")
		b.WriteString(FormatTimestamp(cue.Start))
		b.WriteString(" --> ")
		b.WriteString(FormatTimestamp(cue.End))
		b.WriteString("\n")
		b.WriteString(cue.Text)
		b.WriteString("\n")
		if i < len(cues)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// WriteSRTFile writes cues to an SRT file.
func WriteSRTFile(path string, cues []Cue) error {
	return os.WriteFile(path, []byte(FormatSRT(cues)), 0644)
}

// FormatTimestamp converts a duration to the SRT timestamp format
// 00:00:00,000.
func FormatTimestamp(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}
