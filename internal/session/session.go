// Package session owns per-session audio buffering and lifecycle state.
package session

import (
	"sync"
	"time"

	"github.com/zzzhilu/concallocalapp/internal/pcm"
)

// Mode is the language preference chosen when a session starts.
type Mode string

const (
	ModeZH        Mode = "zh"
	ModeEN        Mode = "en"
	ModeBilingual Mode = "bilingual"
)

// NeedsTranslation reports whether the progressive translation engine should
// run for this mode.
func (m Mode) NeedsTranslation() bool { return m != ModeZH }

// window is one rolling audio buffer. The offset advances only on drain, so
// segment timestamps derived from it are absolute within the session.
type window struct {
	chunks    [][]float32
	samples   int
	offsetSec float64
}

func (w *window) append(samples []float32) {
	w.chunks = append(w.chunks, samples)
	w.samples += len(samples)
}

// drain concatenates and empties the buffer, returning the audio and the
// absolute start offset of its first sample.
func (w *window) drain(sampleRate int) ([]float32, float64) {
	buf := make([]float32, 0, w.samples)
	for _, c := range w.chunks {
		buf = append(buf, c...)
	}
	offset := w.offsetSec
	w.offsetSec += pcm.Seconds(len(buf), sampleRate)
	w.chunks = nil
	w.samples = 0
	return buf, offset
}

// Session is one live meeting with independent transcription and diarization
// windows. The two windows drain on different cadences and never share an
// offset counter.
type Session struct {
	ID        string
	Mode      Mode
	CreatedAt time.Time

	mu         sync.Mutex
	sampleRate int
	transcribe window
	diarize    window
}

// AddAudio appends samples to both windows.
func (s *Session) AddAudio(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcribe.append(samples)
	s.diarize.append(samples)
}

// TranscriptionReady reports whether the transcription window holds at least
// threshold samples.
func (s *Session) TranscriptionReady(threshold int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcribe.samples >= threshold
}

// DrainTranscription empties the transcription window.
func (s *Session) DrainTranscription() ([]float32, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcribe.drain(s.sampleRate)
}

// DrainDiarization empties the diarization window. Windows shorter than
// minSamples are discarded as too short to diarize; the audio is dropped, not
// replayed, and ok is false.
func (s *Session) DrainDiarization(minSamples int) (buf []float32, offset float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.diarize.samples == 0 {
		return nil, 0, false
	}
	buf, offset = s.diarize.drain(s.sampleRate)
	if len(buf) < minSamples {
		return nil, 0, false
	}
	return buf, offset, true
}

// TranscriptionOffset returns the cumulative seconds consumed by prior
// transcription drains.
func (s *Session) TranscriptionOffset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcribe.offsetSec
}
