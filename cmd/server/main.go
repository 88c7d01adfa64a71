// ConCall server - session orchestration for live meeting transcription,
// translation, diarization, and summarization.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zzzhilu/concallocalapp/internal/bus"
	"github.com/zzzhilu/concallocalapp/internal/config"
	"github.com/zzzhilu/concallocalapp/internal/inference"
	"github.com/zzzhilu/concallocalapp/internal/lease"
	"github.com/zzzhilu/concallocalapp/internal/llm"
	"github.com/zzzhilu/concallocalapp/internal/pipeline"
	"github.com/zzzhilu/concallocalapp/internal/server"
	"github.com/zzzhilu/concallocalapp/internal/session"
	"github.com/zzzhilu/concallocalapp/internal/store"
	"github.com/zzzhilu/concallocalapp/internal/summary"
	"github.com/zzzhilu/concallocalapp/internal/text"
	"github.com/zzzhilu/concallocalapp/internal/translate"
	"github.com/zzzhilu/concallocalapp/internal/vad"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg := config.Load()

	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// ASR worker: transcription always, VAD and diarization if loaded.
	worker := inference.New(cfg.InferenceAddr)
	caps, err := worker.Health(context.Background())
	if err != nil {
		slog.Warn("ASR worker unreachable at startup, proceeding degraded", "addr", cfg.InferenceAddr, "error", err)
	}

	var prober vad.Prober
	if caps.VAD {
		prober = worker
	}
	gate := vad.New(prober, cfg.SampleRate, cfg.VADThreshold, cfg.SilenceRMS)

	var diar pipeline.SpeakerDiarization
	if caps.Diarization {
		diar = worker
	}

	normalizer, err := text.NewNormalizer()
	if err != nil {
		slog.Warn("script normalizer unavailable, transcripts pass through", "error", err)
	}

	completions := llm.New(cfg.LLMBaseURL, cfg.LLMModel)
	controller := lease.NewController(lease.NewDockerService(cfg.HeavyContainer, completions.Ready))

	b := bus.New()
	defer b.Close()
	registry := session.NewRegistry(cfg.SampleRate)

	pipe := pipeline.New(b, registry, gate, worker, diar, db, normalizer, pipeline.Config{
		SampleRate:       cfg.SampleRate,
		TranscribeWindow: cfg.TranscribeWindow,
		DiarizeInterval:  cfg.DiarizeInterval,
	})

	engine := translate.NewEngine(b, registry, completions, db, controller, translate.Config{
		MergeWindow:      cfg.MergeWindow,
		RevisionMinChars: cfg.RevisionMinChars,
		RevisionMaxChars: cfg.RevisionMaxChars,
		GlossaryTTL:      cfg.GlossaryTTL,
		MaxTokens:        cfg.TranslateMaxTokens,
	})

	summarizer := summary.NewOrchestrator(b, db, db, completions, controller, summary.Config{
		GraceWait:      cfg.SummaryGraceWait,
		WarmupTimeout:  cfg.WarmupTimeout,
		ChunkThreshold: cfg.ChunkThreshold,
		ChunkSize:      cfg.ChunkSize,
		MaxTokens:      cfg.SummaryMaxTokens,
		ChunkMaxTokens: cfg.ChunkMaxTokens,
	})

	srv := server.New(b, registry, pipe, engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pipe.Run(gctx) })
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return summarizer.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	httpServer := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     srv.Handler(),
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("concall server starting",
			"http", cfg.HTTPAddr,
			"inference", cfg.InferenceAddr,
			"llm", cfg.LLMBaseURL,
			"diarization", diar != nil,
		)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("stage loop error", "error", err)
	}
	slog.Info("shutdown complete")
}
