// Package pipeline drives audio from ingest through gating, transcription,
// and periodic diarization, publishing results on the bus.
package pipeline

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zzzhilu/concallocalapp/internal/bus"
	"github.com/zzzhilu/concallocalapp/internal/pcm"
	"github.com/zzzhilu/concallocalapp/internal/session"
	"github.com/zzzhilu/concallocalapp/internal/store"
	"github.com/zzzhilu/concallocalapp/internal/text"
)

// Chunk is one frame of decoded audio attributed to a session.
type Chunk struct {
	SessionID string
	Samples   []float32
}

// SpeechToText transcribes a drained window.
type SpeechToText interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) ([]bus.Segment, error)
}

// SpeakerDiarization labels speaker turns in a drained window.
type SpeakerDiarization interface {
	Diarize(ctx context.Context, samples []float32, sampleRate int) ([]bus.SpeakerTurn, error)
}

// SpeechGate decides whether a window is worth transcribing.
type SpeechGate interface {
	HasSpeech(ctx context.Context, samples []float32) bool
}

// Config tunes the pipeline cadences.
type Config struct {
	SampleRate       int
	TranscribeWindow time.Duration
	DiarizeInterval  time.Duration
}

// Pipeline owns the ingest channel and the stage loops. Diarization is
// optional: a nil SpeakerDiarization disables that loop for the process
// lifetime.
type Pipeline struct {
	bus      *bus.Bus
	registry *session.Registry
	gate     SpeechGate
	stt      SpeechToText
	diar     SpeakerDiarization
	log      store.TranscriptLog
	norm     *text.Normalizer
	cfg      Config

	in chan Chunk
}

func New(b *bus.Bus, reg *session.Registry, gate SpeechGate, stt SpeechToText, diar SpeakerDiarization, log store.TranscriptLog, norm *text.Normalizer, cfg Config) *Pipeline {
	return &Pipeline{
		bus:      b,
		registry: reg,
		gate:     gate,
		stt:      stt,
		diar:     diar,
		log:      log,
		norm:     norm,
		cfg:      cfg,
		in:       make(chan Chunk, IngestBuffer),
	}
}

// Ingest queues a chunk without blocking. A full queue drops the chunk; live
// audio is worthless late.
func (p *Pipeline) Ingest(c Chunk) {
	select {
	case p.in <- c:
	default:
		slog.Debug("ingest queue full, chunk dropped", "session", c.SessionID)
	}
}

// Run starts the stage loops and blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.ingestLoop(ctx) })
	g.Go(func() error { return p.monitorLoop(ctx) })
	if p.diar != nil {
		g.Go(func() error { return p.diarizeLoop(ctx) })
	} else {
		slog.Info("diarization unavailable, loop disabled")
	}
	return g.Wait()
}

func (p *Pipeline) ingestLoop(ctx context.Context) error {
	threshold := pcm.SamplesFor(p.cfg.TranscribeWindow.Seconds(), p.cfg.SampleRate)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-p.in:
			sess := p.registry.GetOrCreate(c.SessionID)
			sess.AddAudio(c.Samples)
			if sess.TranscriptionReady(threshold) {
				p.transcribeWindow(ctx, sess)
			}
		}
	}
}

// transcribeWindow drains, gates, and transcribes one window. The drain
// happens before the gate so the offset advances even for discarded silence.
func (p *Pipeline) transcribeWindow(ctx context.Context, sess *session.Session) {
	buf, offset := sess.DrainTranscription()
	if !p.gate.HasSpeech(ctx, buf) {
		return
	}

	segs, err := p.stt.Transcribe(ctx, buf, p.cfg.SampleRate)
	if err != nil {
		slog.Warn("transcription failed, window dropped", "session", sess.ID, "error", err)
		return
	}

	var parts []string
	for i := range segs {
		segs[i].Start = round3(segs[i].Start + offset)
		segs[i].End = round3(segs[i].End + offset)
		if t := strings.TrimSpace(segs[i].Text); t != "" {
			parts = append(parts, t)
		}
	}
	joined := strings.Join(parts, " ")
	if p.norm != nil {
		joined = p.norm.Normalize(joined)
	}
	if joined == "" {
		return
	}

	language := ""
	if len(segs) > 0 {
		language = segs[0].Language
	}
	now := time.Now()
	p.bus.Publish(bus.TopicTranscriptions, bus.Transcription{
		SessionID: sess.ID,
		Text:      joined,
		Segments:  segs,
		Language:  language,
		Timestamp: unixSeconds(now),
	})

	if p.log != nil {
		rec := store.Record{Timestamp: now, Text: joined, Language: language}
		if err := p.log.Append(ctx, sess.ID, rec); err != nil {
			slog.Warn("transcript append failed", "session", sess.ID, "error", err)
		}
	}
}

func (p *Pipeline) diarizeLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.DiarizeInterval)
	defer ticker.Stop()

	minSamples := pcm.SamplesFor(MinDiarizeSeconds, p.cfg.SampleRate)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.registry.ForEach(func(sess *session.Session) {
				p.diarizeWindow(ctx, sess, minSamples)
			})
		}
	}
}

func (p *Pipeline) diarizeWindow(ctx context.Context, sess *session.Session, minSamples int) {
	buf, offset, ok := sess.DrainDiarization(minSamples)
	if !ok {
		return
	}

	turns, err := p.diar.Diarize(ctx, buf, p.cfg.SampleRate)
	if err != nil {
		slog.Warn("diarization failed, window dropped", "session", sess.ID, "error", err)
		return
	}
	for i := range turns {
		turns[i].Start = round3(turns[i].Start + offset)
		turns[i].End = round3(turns[i].End + offset)
	}

	p.bus.Publish(bus.TopicDiarization, bus.Diarization{
		SessionID:     sess.ID,
		Speakers:      turns,
		AudioDuration: round3(pcm.Seconds(len(buf), p.cfg.SampleRate)),
		Timestamp:     unixSeconds(time.Now()),
	})
}

// monitorLoop releases session buffers when the session goes away.
func (p *Pipeline) monitorLoop(ctx context.Context) error {
	sub := p.bus.Subscribe(bus.TopicStatus)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			st, ok := ev.Payload.(bus.Status)
			if !ok {
				continue
			}
			if st.Status == bus.StatusSessionEnded || st.Status == bus.StatusSessionDisconnected {
				p.registry.Clear(st.SessionID)
			}
		}
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
