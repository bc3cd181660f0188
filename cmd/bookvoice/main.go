// Command bookvoice narrates a document (txt, epub, pdf, md, docx)
// through a TTS backend, either as one in-memory pass or as a
// resumable per-chunk run under --split-output.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/bookvoice/internal/audio"
	"github.com/dgallion1/bookvoice/internal/chunker"
	"github.com/dgallion1/bookvoice/internal/config"
	"github.com/dgallion1/bookvoice/internal/document"
	"github.com/dgallion1/bookvoice/internal/extractor"
	"github.com/dgallion1/bookvoice/internal/process"
	"github.com/dgallion1/bookvoice/internal/subtitle"
	"github.com/dgallion1/bookvoice/internal/synth"
)

type options struct {
	voice           string
	speed           float64
	lang            string
	splitOutput     string
	format          string
	mergeChunks     bool
	debug           bool
	chunkSize       int
	minChapterChars int
	output          string
	srt             bool
	synthURL        string
	synthAPIKey     string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "bookvoice [input-file]",
		Short: "Narrate a document to audio through a TTS backend",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			log := newLogger(opts.debug)

			if opts.mergeChunks {
				if opts.splitOutput == "" {
					return errors.New("--merge-chunks requires --split-output")
				}
				input := ""
				if len(args) == 1 {
					input = args[0]
				}
				return runMerge(input, opts, log)
			}

			if len(args) != 1 {
				return errors.New("an input file is required")
			}
			return runNarrate(args[0], opts, log)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.voice, "voice", cfg.DefaultVoice, "voice name, or a two-voice blend like \"af_sky:60,af_bella:40\"")
	f.Float64Var(&opts.speed, "speed", cfg.DefaultSpeed, "speech speed multiplier")
	f.StringVar(&opts.lang, "lang", cfg.DefaultLang, "language code")
	f.StringVar(&opts.splitOutput, "split-output", "", "directory for per-chunk artifacts (enables resumable mode)")
	f.StringVar(&opts.format, "format", cfg.DefaultFormat, "audio format: wav or mp3")
	f.BoolVar(&opts.mergeChunks, "merge-chunks", false, "merge chunk artifacts under --split-output into chapter files; pass the input file too to get SRT captions")
	f.BoolVar(&opts.debug, "debug", false, "verbose diagnostic output")
	f.IntVar(&opts.chunkSize, "chunk-size", cfg.ChunkTargetSize, "target chunk size in characters")
	f.IntVar(&opts.minChapterChars, "min-chapter-chars", cfg.MinChapterChars, "minimum extracted chapter length")
	f.StringVarP(&opts.output, "output", "o", "", "output file for whole-document mode (default: input name with audio extension)")
	f.BoolVar(&opts.srt, "srt", false, "write an SRT caption track next to the output (whole-document mode)")
	f.StringVar(&opts.synthURL, "synth-url", cfg.SynthURL, "TTS backend base URL")
	f.StringVar(&opts.synthAPIKey, "synth-api-key", cfg.SynthAPIKey, "TTS backend API key")

	return cmd
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func validate(opts *options) (synth.Voice, error) {
	voice, err := synth.ParseVoice(opts.voice)
	if err != nil {
		return synth.Voice{}, err
	}
	switch strings.ToLower(opts.format) {
	case "wav":
	case "mp3":
		if !audio.FFmpegAvailable() {
			return synth.Voice{}, errors.New("--format mp3 requires ffmpeg on PATH")
		}
	default:
		return synth.Voice{}, fmt.Errorf("unsupported format %q (want wav or mp3)", opts.format)
	}
	if opts.speed <= 0 {
		return synth.Voice{}, fmt.Errorf("speed must be positive, got %v", opts.speed)
	}
	return voice, nil
}

func runNarrate(input string, opts *options, log *slog.Logger) error {
	voice, err := validate(opts)
	if err != nil {
		return err
	}
	chapters, err := extractChapters(input, opts, log)
	if err != nil {
		return err
	}
	words := 0
	for _, ch := range chapters {
		words += ch.WordCount()
	}
	log.Info("extracted chapters", "count", len(chapters), "words", words)

	backend := synth.NewRemoteBackend(opts.synthURL, opts.synthAPIKey)
	defer backend.Close()
	stats := synth.NewStats()
	driver := synth.NewDriver(backend, stats, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chunkCfg := chunker.Config{TargetSize: opts.chunkSize}
	var runErr error
	if opts.splitOutput != "" {
		runErr = runSplit(ctx, driver, chapters, chunkCfg, voice, opts, log)
	} else {
		runErr = runWhole(ctx, driver, input, chapters, chunkCfg, voice, opts, log)
	}

	snap := stats.Snapshot()
	if snap.Attempts > 0 {
		fmt.Fprintf(os.Stderr, "synthesis: %d calls, %d ok, %d splits, avg %.0fms\n",
			snap.Attempts, snap.Successes, snap.Splits, snap.AvgMs)
	}
	return runErr
}

// runSplit is the resumable mode: one artifact per chunk under
// --split-output, skipping whatever a previous run already finished.
func runSplit(ctx context.Context, driver *synth.Driver, chapters []document.Chapter, chunkCfg chunker.Config, voice synth.Voice, opts *options, log *slog.Logger) error {
	proc := process.NewProcessor(driver, process.Config{
		OutputRoot: opts.splitOutput,
		Format:     strings.ToLower(opts.format),
		Chunk:      chunkCfg,
		Voice:      voice,
		Speed:      opts.speed,
		Lang:       opts.lang,
		Log:        log,
		Progress: func(ev process.ProgressEvent) {
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %s: chunk %d/%d        ",
				ev.ChapterIndex, ev.ChapterCount, ev.ChapterTitle, ev.ChunkIndex, ev.ChunkCount)
		},
	})

	report, err := proc.Process(ctx, chapters)
	fmt.Fprintln(os.Stderr)
	printReport(report)
	if errors.Is(err, context.Canceled) {
		fmt.Println("interrupted; rerun with the same flags to resume")
		return nil
	}
	return err
}

// runWhole accumulates the whole document in memory and writes one
// audio file (and optionally one SRT track).
func runWhole(ctx context.Context, driver *synth.Driver, input string, chapters []document.Chapter, chunkCfg chunker.Config, voice synth.Voice, opts *options, log *slog.Logger) error {
	var samples []float32
	rate := 0
	var track subtitle.Track
	failed := 0

	for _, chapter := range chapters {
		for _, chunk := range chunker.Split(chapter.Content, chunkCfg) {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := driver.SynthesizeChunk(ctx, synth.Request{
				Text:  chunk,
				Voice: voice,
				Speed: opts.speed,
				Lang:  opts.lang,
			})
			if err != nil {
				log.Error("chunk failed, skipping", "chapter", chapter.Title, "error", err)
				failed++
				continue
			}
			samples = append(samples, result.Samples...)
			rate = result.SampleRate
			track.Append(chunk, time.Duration(result.Duration()*float64(time.Second)))
		}
	}
	if len(samples) == 0 {
		return errors.New("no audio was synthesized")
	}

	out := opts.output
	if out == "" {
		base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		out = base + "." + strings.ToLower(opts.format)
	}
	if err := audio.WriteFile(out, samples, rate, strings.ToLower(opts.format)); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%.1fs", out, audio.Duration(samples, rate))
	if failed > 0 {
		fmt.Printf(", %d chunks failed", failed)
	}
	fmt.Println(")")

	if opts.srt {
		srtPath := strings.TrimSuffix(out, filepath.Ext(out)) + ".srt"
		if err := subtitle.WriteSRTFile(srtPath, track.Cues()); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", srtPath)
	}
	return nil
}

// runMerge merges the chunk artifacts under --split-output. When the
// input file is also given, chunk texts are recovered from it and an
// SRT caption track is written next to each merged chapter.
func runMerge(input string, opts *options, log *slog.Logger) error {
	if _, err := validate(opts); err != nil {
		return err
	}
	merger := process.NewMerger(strings.ToLower(opts.format), log)
	if input != "" {
		chapters, err := extractChapters(input, opts, log)
		if err != nil {
			return err
		}
		merger.Captions = process.CaptionsFor(chapters, chunker.Config{TargetSize: opts.chunkSize})
	}
	written, err := merger.MergeAll(opts.splitOutput)
	for _, path := range written {
		fmt.Println("merged", path)
	}
	return err
}

func extractChapters(input string, opts *options, log *slog.Logger) ([]document.Chapter, error) {
	if _, err := os.Stat(input); err != nil {
		return nil, fmt.Errorf("input file: %w", err)
	}
	ext, err := extractor.ForFile(input, extractor.Options{
		MinChapterChars: opts.minChapterChars,
		Log:             log,
	})
	if err != nil {
		return nil, err
	}
	return ext.Extract(input)
}

func printReport(report process.Report) {
	for _, ch := range report.Chapters {
		status := "done"
		if ch.AlreadyComplete {
			status = "already complete"
		} else if ch.ChunksCompleted < ch.ChunksExpected {
			status = "incomplete"
		}
		fmt.Printf("%-40s %d/%d chunks (%s)\n", ch.Title, ch.ChunksCompleted, ch.ChunksExpected, status)
	}
	fmt.Printf("total: %d/%d chunks completed\n", report.ChunksCompleted(), report.ChunksExpected())
}
