package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zzzhilu/concallocalapp/internal/pcm"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("expected multipart upload: %v", err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file field: %v", err)
		}
		defer f.Close()
		header := make([]byte, 4)
		if _, err := f.Read(header); err != nil || string(header) != "RIFF" {
			t.Errorf("expected WAV payload, got %q (%v)", header, err)
		}
		w.Write([]byte(`{"language":"en","segments":[{"start":0.0,"end":1.5,"text":"hello","confidence":0.91}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	segs, err := c.Transcribe(context.Background(), make([]float32, 16000), 16000)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Text != "hello" || segs[0].Language != "en" || segs[0].End != 1.5 {
		t.Errorf("unexpected segment: %+v", segs[0])
	}
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Transcribe(context.Background(), make([]float32, 100), 16000); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestSpeechProb(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vad" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("sample_rate"); got != "16000" {
			t.Errorf("expected sample_rate=16000, got %q", got)
		}
		w.Write([]byte(`{"probability":0.83}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	prob, err := c.SpeechProb(context.Background(), make([]float32, 512), 16000)
	if err != nil {
		t.Fatalf("vad: %v", err)
	}
	if prob != 0.83 {
		t.Errorf("expected 0.83, got %f", prob)
	}
}

func TestDiarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"speakers":[{"start":0,"end":2.5,"speaker":"SPEAKER_00"},{"start":2.5,"end":4,"speaker":"SPEAKER_01"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	turns, err := c.Diarize(context.Background(), make([]float32, 16000*4), 16000)
	if err != nil {
		t.Fatalf("diarize: %v", err)
	}
	if len(turns) != 2 || turns[1].Speaker != "SPEAKER_01" {
		t.Errorf("unexpected turns: %+v", turns)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","capabilities":{"asr":true,"vad":true,"diarization":false}}`))
	}))
	defer srv.Close()

	caps, err := New(srv.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !caps.ASR || !caps.VAD || caps.Diarization {
		t.Errorf("unexpected capabilities: %+v", caps)
	}
}

func TestVADPayloadIsRawPCM(t *testing.T) {
	block := []float32{0.1, -0.2, 0.3}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, len(block)*4)
		if _, err := r.Body.Read(buf); err != nil && err.Error() != "EOF" {
			t.Fatalf("read body: %v", err)
		}
		got := pcm.BytesToFloat32(buf)
		if len(got) != 3 || got[0] != 0.1 {
			t.Errorf("unexpected samples: %v", got)
		}
		w.Write([]byte(`{"probability":0}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL).SpeechProb(context.Background(), block, 16000); err != nil {
		t.Fatalf("vad: %v", err)
	}
}
