package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/bookvoice/internal/synth"
)

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *synth.RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

const MaxRetries = 3

// RetryingSynthesizer wraps a backend with backoff on transient errors
// (rate limits, 5xx). Too-long errors pass straight through so the
// driver's split logic still sees them.
type RetryingSynthesizer struct {
	Backend synth.Synthesizer
	Log     *slog.Logger
}

func (r *RetryingSynthesizer) Synthesize(ctx context.Context, req synth.Request) (synth.Audio, error) {
	var audio synth.Audio
	var err error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		audio, err = r.Backend.Synthesize(ctx, req)
		if err == nil || !IsRetryable(err) {
			return audio, err
		}
		if r.Log != nil {
			r.Log.Warn("retryable synthesis error", "attempt", attempt, "error", err)
		}
		select {
		case <-time.After(Backoff(attempt)):
		case <-ctx.Done():
			return synth.Audio{}, ctx.Err()
		}
	}
	return audio, err
}
