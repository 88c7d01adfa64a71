package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.SampleRate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", cfg.SampleRate)
	}
	if cfg.TranscribeWindow != 5*time.Second {
		t.Errorf("expected 5s transcribe window, got %v", cfg.TranscribeWindow)
	}
	if cfg.DiarizeInterval != 30*time.Second {
		t.Errorf("expected 30s diarize interval, got %v", cfg.DiarizeInterval)
	}
	if cfg.ChunkThreshold != 10000 || cfg.ChunkSize != 5000 {
		t.Errorf("unexpected chunking defaults: %d/%d", cfg.ChunkThreshold, cfg.ChunkSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SAMPLE_RATE", "8000")
	t.Setenv("TRANSCRIBE_WINDOW", "2s")
	t.Setenv("WARMUP_TIMEOUT", "60")
	t.Setenv("VAD_THRESHOLD", "0.7")

	cfg := Load()
	if cfg.SampleRate != 8000 {
		t.Errorf("expected 8000, got %d", cfg.SampleRate)
	}
	if cfg.TranscribeWindow != 2*time.Second {
		t.Errorf("expected 2s, got %v", cfg.TranscribeWindow)
	}
	if cfg.WarmupTimeout != 60*time.Second {
		t.Errorf("bare-number duration should parse as seconds, got %v", cfg.WarmupTimeout)
	}
	if cfg.VADThreshold != 0.7 {
		t.Errorf("expected 0.7, got %f", cfg.VADThreshold)
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("SAMPLE_RATE", "not-a-number")
	cfg := Load()
	if cfg.SampleRate != 16000 {
		t.Errorf("invalid env should fall back to default, got %d", cfg.SampleRate)
	}
}
