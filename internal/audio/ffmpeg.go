package audio

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// WriteFile writes samples in the requested container format. WAV is
// encoded natively; MP3 goes through ffmpeg.
func WriteFile(path string, samples []float32, sampleRate int, format string) error {
	switch strings.ToLower(format) {
	case "wav":
		return WriteWAV(path, samples, sampleRate)
	case "mp3":
		return writeMP3(path, samples, sampleRate)
	default:
		return fmt.Errorf("unsupported audio format: %s", format)
	}
}

// ReadFile decodes a chunk artifact in either supported format.
func ReadFile(path string) ([]float32, int, error) {
	if strings.HasSuffix(strings.ToLower(path), ".mp3") {
		return readMP3(path)
	}
	return ReadWAV(path)
}

// writeMP3 pipes a WAV stream through ffmpeg. ffmpeg must be on PATH
// when --format mp3 is used; this is validated up front by the CLI.
func writeMP3(path string, samples []float32, sampleRate int) error {
	var wav bytes.Buffer
	if err := EncodeWAV(&wav, samples, sampleRate); err != nil {
		return err
	}

	cmd := exec.Command("ffmpeg", "-y", "-f", "wav", "-i", "pipe:0", "-codec:a", "libmp3lame", "-q:a", "2", path)
	cmd.Stdin = &wav
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(path)
		return fmt.Errorf("ffmpeg mp3 encode: %w: %s", err, truncate(stderr.String(), 300))
	}
	return nil
}

// readMP3 decodes an MP3 artifact back to PCM via ffmpeg.
func readMP3(path string) ([]float32, int, error) {
	cmd := exec.Command("ffmpeg", "-i", path, "-f", "wav", "-codec:a", "pcm_s16le", "pipe:1")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, 0, fmt.Errorf("ffmpeg mp3 decode: %w: %s", err, truncate(stderr.String(), 300))
	}
	return DecodeWAV(out.Bytes())
}

// FFmpegAvailable reports whether ffmpeg is on PATH.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
