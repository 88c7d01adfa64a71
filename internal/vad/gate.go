// Package vad gates transcription on voice activity so silent windows never
// reach the speech-to-text engine.
package vad

import (
	"context"
	"log/slog"

	"github.com/zzzhilu/concallocalapp/internal/pcm"
)

// Prober scores a fixed-size block for speech probability.
type Prober interface {
	SpeechProb(ctx context.Context, block []float32, sampleRate int) (float64, error)
}

// Gate decides whether a drained audio window contains speech. It never
// returns an error: any probe failure falls back to the RMS energy heuristic
// so the pipeline keeps moving.
type Gate struct {
	prober     Prober
	sampleRate int
	threshold  float64
	silenceRMS float64
}

func New(prober Prober, sampleRate int, threshold, silenceRMS float64) *Gate {
	return &Gate{
		prober:     prober,
		sampleRate: sampleRate,
		threshold:  threshold,
		silenceRMS: silenceRMS,
	}
}

// HasSpeech scans the buffer in BlockSize-sample blocks and reports true as
// soon as any block scores above the threshold. Buffers shorter than one
// block, or probe errors, use the RMS fallback over the whole buffer.
func (g *Gate) HasSpeech(ctx context.Context, samples []float32) bool {
	if g.prober == nil || len(samples) < BlockSize {
		return g.rmsFallback(samples)
	}

	blocks := len(samples) / BlockSize
	for i := 0; i < blocks; i++ {
		block := samples[i*BlockSize : (i+1)*BlockSize]
		prob, err := g.prober.SpeechProb(ctx, block, g.sampleRate)
		if err != nil {
			slog.Debug("VAD probe failed, falling back to RMS", "error", err)
			return g.rmsFallback(samples)
		}
		if prob > g.threshold {
			return true
		}
	}
	return false
}

func (g *Gate) rmsFallback(samples []float32) bool {
	return pcm.RMS(samples) > g.silenceRMS
}
