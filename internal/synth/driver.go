package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/bookvoice/internal/chunker"
)

// shrinkFactor is the chunk-size reduction applied on a too-long
// failure. 60% converges in a handful of retries instead of many small
// decrements.
const shrinkFactor = 0.6

// maxRetryDepth bounds the recursive re-splitting. A chunk still
// overflowing at this depth is a terminal per-chunk failure.
const maxRetryDepth = 6

// Driver wraps a Synthesizer with adaptive retry-by-splitting. It holds
// no persistent state of its own.
type Driver struct {
	backend Synthesizer
	stats   *Stats
	log     *slog.Logger
}

func NewDriver(backend Synthesizer, stats *Stats, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	if stats == nil {
		stats = NewStats()
	}
	return &Driver{backend: backend, stats: stats, log: log}
}

// Stats returns the driver's counters.
func (d *Driver) Stats() *Stats { return d.stats }

// SynthesizeChunk synthesizes one chunk, splitting it into smaller
// word-packed pieces when the backend reports the input is too long.
// Pieces that fail terminally are omitted from the concatenation: a
// shorter result is preferred over total failure of the whole chunk.
func (d *Driver) SynthesizeChunk(ctx context.Context, req Request) (Audio, error) {
	return d.synthesize(ctx, req, 0)
}

func (d *Driver) synthesize(ctx context.Context, req Request, depth int) (Audio, error) {
	d.stats.RecordAttempt()

	start := time.Now()
	audio, err := d.backend.Synthesize(ctx, req)
	d.stats.RecordLatency(time.Since(start))
	if err == nil {
		d.stats.RecordSuccess(len(audio.Samples))
		return audio, nil
	}

	if !errors.Is(err, ErrInputTooLong) {
		return Audio{}, err
	}
	if depth >= maxRetryDepth {
		return Audio{}, fmt.Errorf("chunk still too long after %d split retries: %w", depth, err)
	}

	newSize := int(float64(len(req.Text)) * shrinkFactor)
	pieces := chunker.PackWords(req.Text, newSize)
	d.stats.RecordSplit()
	d.log.Debug("splitting oversized chunk",
		"chars", len(req.Text),
		"new_size", newSize,
		"pieces", len(pieces),
		"depth", depth+1,
	)

	var all []float32
	sampleRate := 0
	for i, piece := range pieces {
		pieceReq := req
		pieceReq.Text = piece
		audio, err := d.synthesize(ctx, pieceReq, depth+1)
		if err != nil {
			// Partial-success policy: drop the failed piece, keep the rest.
			d.log.Warn("piece failed, omitting from chunk",
				"piece", i+1,
				"pieces", len(pieces),
				"chars", len(piece),
				"error", err,
			)
			continue
		}
		all = append(all, audio.Samples...)
		sampleRate = audio.SampleRate
	}

	if len(all) == 0 {
		return Audio{}, ErrNoAudio
	}
	return Audio{Samples: all, SampleRate: sampleRate}, nil
}
