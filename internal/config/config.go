// Package config handles worker configuration
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr      string
	InferenceAddr string // ASR worker base URL
	LLMBaseURL    string // OpenAI-compatible completion endpoint
	LLMModel      string
	DBPath        string

	SampleRate         int
	TranscribeWindow   time.Duration // audio accumulated before a transcription pass
	DiarizeInterval    time.Duration
	VADThreshold       float64
	SilenceRMS         float64
	MergeWindow        int // segments merged for a revision translation
	RevisionMinChars   int
	RevisionMaxChars   int
	GlossaryTTL        time.Duration
	ChunkThreshold     int // transcript length that switches summarization to chunked mode
	ChunkSize          int
	TranslateMaxTokens int
	SummaryMaxTokens   int
	ChunkMaxTokens     int
	SummaryGraceWait   time.Duration
	WarmupTimeout      time.Duration
	HeavyContainer     string // docker container running the completion service
}

func Load() *Config {
	return &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		InferenceAddr:      getEnv("INFERENCE_ADDR", "http://localhost:50060"),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8000/v1"),
		LLMModel:           getEnv("LLM_MODEL", "Qwen/Qwen2.5-32B-Instruct-AWQ"),
		DBPath:             getEnv("DB_PATH", "concall.sqlite"),
		SampleRate:         getEnvInt("SAMPLE_RATE", 16000),
		TranscribeWindow:   getEnvDuration("TRANSCRIBE_WINDOW", 5*time.Second),
		DiarizeInterval:    getEnvDuration("DIARIZE_INTERVAL", 30*time.Second),
		VADThreshold:       getEnvFloat("VAD_THRESHOLD", 0.5),
		SilenceRMS:         getEnvFloat("SILENCE_RMS", 0.01),
		MergeWindow:        getEnvInt("MERGE_WINDOW", 5),
		RevisionMinChars:   getEnvInt("REVISION_MIN_CHARS", 30),
		RevisionMaxChars:   getEnvInt("REVISION_MAX_CHARS", 200),
		GlossaryTTL:        getEnvDuration("GLOSSARY_TTL", 30*time.Second),
		ChunkThreshold:     getEnvInt("CHUNK_THRESHOLD", 10000),
		ChunkSize:          getEnvInt("CHUNK_SIZE", 5000),
		TranslateMaxTokens: getEnvInt("TRANSLATE_MAX_TOKENS", 512),
		SummaryMaxTokens:   getEnvInt("SUMMARY_MAX_TOKENS", 2048),
		ChunkMaxTokens:     getEnvInt("CHUNK_SUMMARY_MAX_TOKENS", 1024),
		SummaryGraceWait:   getEnvDuration("SUMMARY_GRACE_WAIT", 3*time.Second),
		WarmupTimeout:      getEnvDuration("WARMUP_TIMEOUT", 120*time.Second),
		HeavyContainer:     getEnv("HEAVY_CONTAINER", "concall-vllm"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// bare numbers are taken as seconds
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
