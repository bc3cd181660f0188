package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// RemoteBackend calls an HTTP text-to-speech API implementing the
// Synthesizer contract. The wire format is a small JSON envelope with
// base64-encoded little-endian PCM16 audio.
type RemoteBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRemoteBackend(baseURL, apiKey string) *RemoteBackend {
	return &RemoteBackend{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type remoteRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
	Lang  string  `json:"lang"`
}

type remoteResponse struct {
	SampleRate int    `json:"sample_rate"`
	Audio      string `json:"audio"` // base64 PCM16 LE mono
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Synthesize posts one chunk to the remote API. An "input_too_long"
// error code from the API is translated into ErrInputTooLong so the
// driver's split-retry triggers on a type check, never on message text.
func (b *RemoteBackend) Synthesize(ctx context.Context, req Request) (Audio, error) {
	body, err := json.Marshal(remoteRequest{
		Text:  req.Text,
		Voice: req.Voice.String(),
		Speed: req.Speed,
		Lang:  req.Lang,
	})
	if err != nil {
		return Audio{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/synthesize", bytes.NewReader(body))
	if err != nil {
		return Audio{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return Audio{}, fmt.Errorf("tts api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return Audio{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Audio{}, &RetryableError{StatusCode: resp.StatusCode, Message: truncate(string(respBody), 200)}
	}

	var apiResp remoteResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Audio{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if apiResp.Error != nil {
		if apiResp.Error.Code == "input_too_long" {
			return Audio{}, fmt.Errorf("%s: %w", apiResp.Error.Message, ErrInputTooLong)
		}
		return Audio{}, fmt.Errorf("tts api error %s: %s", apiResp.Error.Code, apiResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return Audio{}, fmt.Errorf("tts api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	pcm, err := base64.StdEncoding.DecodeString(apiResp.Audio)
	if err != nil {
		return Audio{}, fmt.Errorf("decode audio: %w", err)
	}
	if apiResp.SampleRate <= 0 {
		return Audio{}, fmt.Errorf("invalid sample rate %d", apiResp.SampleRate)
	}

	return Audio{Samples: pcm16ToFloat32(pcm), SampleRate: apiResp.SampleRate}, nil
}

// Close releases idle connections.
func (b *RemoteBackend) Close() {
	b.httpClient.CloseIdleConnections()
}

func pcm16ToFloat32(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(v) / math.MaxInt16
	}
	return samples
}

// RetryableError indicates a transient backend failure worth retrying.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, e.Message)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
