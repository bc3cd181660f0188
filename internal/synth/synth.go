// Package synth defines the synthesis backend abstraction and the
// adaptive chunk-retry driver that sits in front of it.
package synth

import (
	"context"
	"errors"
)

// Audio is the result of one successful synthesis call.
type Audio struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the audio length in seconds.
func (a Audio) Duration() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate)
}

// Request carries one piece of text plus the voice configuration for it.
type Request struct {
	Text  string
	Voice Voice
	Speed float64
	Lang  string
}

// Synthesizer is the injected backend capability. Implementations must
// return ErrInputTooLong (possibly wrapped) when the text exceeds the
// backend's internal token or phoneme limit, so the driver can retry
// with smaller pieces.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// ErrInputTooLong signals that a text chunk exceeds the backend's
// single-pass limit. It is retryable by splitting, not a content error.
var ErrInputTooLong = errors.New("input exceeds backend length limit")

// ErrNoAudio is returned when a chunk produced no samples after all
// split retries were exhausted.
var ErrNoAudio = errors.New("no audio produced for chunk")
