package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zzzhilu/concallocalapp/internal/bus"
	"github.com/zzzhilu/concallocalapp/internal/session"
	"github.com/zzzhilu/concallocalapp/internal/store"
)

type fakeSTT struct {
	segs []bus.Segment
	err  error
}

func (f *fakeSTT) Transcribe(context.Context, []float32, int) ([]bus.Segment, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]bus.Segment, len(f.segs))
	copy(out, f.segs)
	return out, nil
}

type fakeDiar struct {
	turns []bus.SpeakerTurn
	calls int
}

func (f *fakeDiar) Diarize(context.Context, []float32, int) ([]bus.SpeakerTurn, error) {
	f.calls++
	out := make([]bus.SpeakerTurn, len(f.turns))
	copy(out, f.turns)
	return out, nil
}

type openGate bool

func (g openGate) HasSpeech(context.Context, []float32) bool { return bool(g) }

func testPipeline(t *testing.T, stt SpeechToText, diar SpeakerDiarization, gate SpeechGate) (*Pipeline, *bus.Bus, *session.Registry, *store.MemoryLog) {
	t.Helper()
	b := bus.New()
	t.Cleanup(b.Close)
	reg := session.NewRegistry(100)
	log := store.NewMemoryLog()
	cfg := Config{SampleRate: 100, TranscribeWindow: time.Second, DiarizeInterval: 10 * time.Millisecond}
	return New(b, reg, gate, stt, diar, log, nil, cfg), b, reg, log
}

func englishSegs() []bus.Segment {
	return []bus.Segment{
		{Start: 0, End: 2.2, Text: "hello", Language: "en"},
		{Start: 2.2, End: 4.8, Text: "world", Language: "en"},
	}
}

func TestTranscribeWindowPublishesAbsoluteTimes(t *testing.T) {
	p, b, reg, log := testPipeline(t, &fakeSTT{segs: englishSegs()}, nil, openGate(true))
	sub := b.Subscribe(bus.TopicTranscriptions)
	defer sub.Close()

	sess := reg.GetOrCreate("s1")
	sess.AddAudio(make([]float32, 100)) // one second at the test rate
	p.transcribeWindow(context.Background(), sess)
	sess.AddAudio(make([]float32, 100))
	p.transcribeWindow(context.Background(), sess)

	var got []bus.Transcription
	for len(got) < 2 {
		select {
		case ev := <-sub.C:
			got = append(got, ev.Payload.(bus.Transcription))
		case <-time.After(time.Second):
			t.Fatalf("only %d transcriptions arrived", len(got))
		}
	}

	if got[0].Text != "hello world" || got[0].Language != "en" {
		t.Errorf("first window: %+v", got[0])
	}
	if got[0].Segments[0].Start != 0 || got[0].Segments[1].End != 4.8 {
		t.Errorf("first window times: %+v", got[0].Segments)
	}
	// Second window starts after one drained second of audio.
	if got[1].Segments[0].Start != 1.0 || got[1].Segments[1].End != 5.8 {
		t.Errorf("second window times not shifted: %+v", got[1].Segments)
	}

	recs, _ := log.ReadAll(context.Background(), "s1")
	if len(recs) != 2 || recs[0].Text != "hello world" {
		t.Errorf("transcript log: %+v", recs)
	}
}

func TestSilentWindowAdvancesOffset(t *testing.T) {
	p, b, reg, log := testPipeline(t, &fakeSTT{segs: englishSegs()}, nil, openGate(false))
	sub := b.Subscribe(bus.TopicTranscriptions)
	defer sub.Close()

	sess := reg.GetOrCreate("s1")
	sess.AddAudio(make([]float32, 100))
	p.transcribeWindow(context.Background(), sess)

	select {
	case ev := <-sub.C:
		t.Fatalf("silent window should publish nothing, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if off := sess.TranscriptionOffset(); off != 1.0 {
		t.Errorf("offset = %v, want 1.0 (silence still consumes time)", off)
	}
	if recs, _ := log.ReadAll(context.Background(), "s1"); len(recs) != 0 {
		t.Errorf("silence should not reach the log: %+v", recs)
	}
}

func TestTranscribeErrorDropsWindow(t *testing.T) {
	p, b, reg, _ := testPipeline(t, &fakeSTT{err: errors.New("worker down")}, nil, openGate(true))
	sub := b.Subscribe(bus.TopicTranscriptions)
	defer sub.Close()

	sess := reg.GetOrCreate("s1")
	sess.AddAudio(make([]float32, 100))
	p.transcribeWindow(context.Background(), sess)

	select {
	case ev := <-sub.C:
		t.Fatalf("failed window should publish nothing, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if off := sess.TranscriptionOffset(); off != 1.0 {
		t.Errorf("offset = %v, want 1.0 (failed window is not replayed)", off)
	}
}

func TestEmptySegmentsNotPublished(t *testing.T) {
	p, b, reg, log := testPipeline(t, &fakeSTT{segs: []bus.Segment{{Text: "  "}}}, nil, openGate(true))
	sub := b.Subscribe(bus.TopicTranscriptions)
	defer sub.Close()

	sess := reg.GetOrCreate("s1")
	sess.AddAudio(make([]float32, 100))
	p.transcribeWindow(context.Background(), sess)

	select {
	case ev := <-sub.C:
		t.Fatalf("whitespace transcript should publish nothing, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if recs, _ := log.ReadAll(context.Background(), "s1"); len(recs) != 0 {
		t.Errorf("whitespace transcript reached the log: %+v", recs)
	}
}

func TestDiarizeWindowShiftsTurns(t *testing.T) {
	diar := &fakeDiar{turns: []bus.SpeakerTurn{{Start: 0, End: 1.5, Speaker: "SPEAKER_00"}}}
	p, b, reg, _ := testPipeline(t, &fakeSTT{}, diar, openGate(true))
	sub := b.Subscribe(bus.TopicDiarization)
	defer sub.Close()

	sess := reg.GetOrCreate("s1")
	sess.AddAudio(make([]float32, 200))
	p.diarizeWindow(context.Background(), sess, 100)
	sess.AddAudio(make([]float32, 200))
	p.diarizeWindow(context.Background(), sess, 100)

	var got []bus.Diarization
	for len(got) < 2 {
		select {
		case ev := <-sub.C:
			got = append(got, ev.Payload.(bus.Diarization))
		case <-time.After(time.Second):
			t.Fatalf("only %d diarizations arrived", len(got))
		}
	}
	if got[0].Speakers[0].Start != 0 || got[0].AudioDuration != 2.0 {
		t.Errorf("first pass: %+v", got[0])
	}
	if got[1].Speakers[0].Start != 2.0 {
		t.Errorf("second pass turn not shifted: %+v", got[1].Speakers)
	}
}

func TestShortDiarizeWindowSkipped(t *testing.T) {
	diar := &fakeDiar{turns: []bus.SpeakerTurn{{Speaker: "SPEAKER_00"}}}
	p, b, reg, _ := testPipeline(t, &fakeSTT{}, diar, openGate(true))
	sub := b.Subscribe(bus.TopicDiarization)
	defer sub.Close()

	sess := reg.GetOrCreate("s1")
	sess.AddAudio(make([]float32, 50)) // half the minimum
	p.diarizeWindow(context.Background(), sess, 100)

	if diar.calls != 0 {
		t.Error("short window should not reach the model")
	}
	select {
	case ev := <-sub.C:
		t.Fatalf("short window should publish nothing, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRunEndToEnd(t *testing.T) {
	p, b, _, _ := testPipeline(t, &fakeSTT{segs: englishSegs()}, nil, openGate(true))
	sub := b.Subscribe(bus.TopicTranscriptions)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	// Two half-windows; the second tips the buffer over the threshold.
	p.Ingest(Chunk{SessionID: "s1", Samples: make([]float32, 50)})
	p.Ingest(Chunk{SessionID: "s1", Samples: make([]float32, 50)})

	select {
	case ev := <-sub.C:
		tr := ev.Payload.(bus.Transcription)
		if tr.SessionID != "s1" || tr.Text != "hello world" {
			t.Errorf("unexpected transcription: %+v", tr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no transcription from ingest path")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit on cancel")
	}
}

func TestMonitorClearsSession(t *testing.T) {
	p, b, reg, _ := testPipeline(t, &fakeSTT{}, nil, openGate(true))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	p.Ingest(Chunk{SessionID: "s1", Samples: make([]float32, 10)})
	deadline := time.After(2 * time.Second)
	for reg.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("session never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	b.Publish(bus.TopicStatus, bus.Status{SessionID: "s1", Status: bus.StatusSessionDisconnected})
	for reg.Len() != 0 {
		select {
		case <-deadline:
			t.Fatal("session not cleared after disconnect")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
