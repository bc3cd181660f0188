package audio

import (
	"math"
	"path/filepath"
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	samples := make([]float32, 2400)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 24000))
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := WriteWAV(path, samples, 24000); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rate != 24000 {
		t.Errorf("sample rate: got %d, want 24000", rate)
	}
	if len(got) != len(samples) {
		t.Fatalf("sample count: got %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if math.Abs(float64(got[i]-samples[i])) > 1.0/math.MaxInt16*2 {
			t.Fatalf("sample %d: got %v, want %v", i, got[i], samples[i])
		}
	}
}

func TestWriteWAV_RejectsBadRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := WriteWAV(path, []float32{0}, 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("definitely not a riff file")); err == nil {
		t.Fatal("expected error for non-wav input")
	}
}

func TestDuration(t *testing.T) {
	if d := Duration(make([]float32, 48000), 24000); d != 2.0 {
		t.Errorf("duration: got %v, want 2.0", d)
	}
	if d := Duration(nil, 0); d != 0 {
		t.Errorf("duration with zero rate: got %v, want 0", d)
	}
}

func TestWriteFile_UnsupportedFormat(t *testing.T) {
	if err := WriteFile(filepath.Join(t.TempDir(), "x.ogg"), []float32{0}, 24000, "ogg"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
