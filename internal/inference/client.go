// Package inference provides the HTTP client for the ASR worker sidecar,
// which hosts the speech-to-text, voice-activity, and speaker-diarization
// models.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/zzzhilu/concallocalapp/internal/bus"
	"github.com/zzzhilu/concallocalapp/internal/pcm"
)

// Client wraps all ASR worker capabilities.
type Client struct {
	base string
	http *http.Client
}

// Capabilities reports which models the worker loaded at startup.
type Capabilities struct {
	ASR         bool `json:"asr"`
	VAD         bool `json:"vad"`
	Diarization bool `json:"diarization"`
}

func New(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: RequestTimeout},
	}
}

// Health fetches the worker's capability report.
func (c *Client) Health(ctx context.Context) (Capabilities, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return Capabilities{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Capabilities{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Capabilities{}, fmt.Errorf("health: status %d", resp.StatusCode)
	}

	var out struct {
		Capabilities Capabilities `json:"capabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Capabilities{}, fmt.Errorf("health: decode: %w", err)
	}
	return out.Capabilities, nil
}

type transcribeResponse struct {
	Language string `json:"language"`
	Segments []struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"segments"`
}

// Transcribe sends the drained window as WAV and returns segments with
// window-relative timestamps and auto-detected language.
func (c *Client) Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]bus.Segment, error) {
	body, contentType, err := wavForm(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/transcribe", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError("transcribe", resp)
	}

	var parsed transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("transcribe: decode: %w", err)
	}

	segments := make([]bus.Segment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		segments = append(segments, bus.Segment{
			Start:      s.Start,
			End:        s.End,
			Text:       s.Text,
			Language:   parsed.Language,
			Confidence: s.Confidence,
		})
	}
	return segments, nil
}

// SpeechProb scores one VAD block. The block goes up as raw float32 PCM; it
// is too small to justify WAV framing.
func (c *Client) SpeechProb(ctx context.Context, block []float32, sampleRate int) (float64, error) {
	u := c.base + "/vad?" + url.Values{"sample_rate": {strconv.Itoa(sampleRate)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(pcm.Float32ToBytes(block)))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, httpError("vad", resp)
	}

	var out struct {
		Probability float64 `json:"probability"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("vad: decode: %w", err)
	}
	return out.Probability, nil
}

// Diarize sends the drained diarization window and returns speaker turns with
// window-relative timestamps.
func (c *Client) Diarize(ctx context.Context, samples []float32, sampleRate int) ([]bus.SpeakerTurn, error) {
	body, contentType, err := wavForm(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/diarize", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError("diarize", resp)
	}

	var out struct {
		Speakers []bus.SpeakerTurn `json:"speakers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("diarize: decode: %w", err)
	}
	return out.Speakers, nil
}

func wavForm(samples []float32, sampleRate int) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(pcm.EncodeWAV(samples, sampleRate)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func httpError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(snippet))
}

// RequestTimeout bounds each worker call. Transcription of a 5s window
// finishes well inside this on GPU; a hung worker surfaces as a dropped
// cycle, not a stuck loop.
const RequestTimeout = 60 * time.Second
