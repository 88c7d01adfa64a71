// Package summary generates the end-of-session meeting minutes. Short
// transcripts go through a single completion; long ones are map-reduced over
// line-preserving chunks before a final streamed merge.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zzzhilu/concallocalapp/internal/bus"
	"github.com/zzzhilu/concallocalapp/internal/store"
	"github.com/zzzhilu/concallocalapp/internal/text"
	"github.com/zzzhilu/concallocalapp/internal/trace"
	"github.com/zzzhilu/concallocalapp/internal/translate"
)

// Completer is the completion surface the orchestrator needs.
type Completer interface {
	Chat(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error)
	ChatStream(ctx context.Context, system, user string, maxTokens int, temperature float32, onDelta func(string)) error
}

// Lifecycle controls the heavy backend around a summary job.
type Lifecycle interface {
	RequestStart(ctx context.Context) error
	RequestStop(ctx context.Context) error
	AwaitReady(ctx context.Context, timeout time.Duration) error
}

// Config tunes the job.
type Config struct {
	GraceWait      time.Duration
	WarmupTimeout  time.Duration
	ChunkThreshold int
	ChunkSize      int
	MaxTokens      int
	ChunkMaxTokens int
}

// Orchestrator listens for session-end signals and runs one summary job per
// signal, in the consumer goroutine. Jobs are rare and long; running them
// inline keeps one session's summary from interleaving with another's.
type Orchestrator struct {
	bus      *bus.Bus
	log      store.TranscriptLog
	glossary store.GlossaryStore
	llm      Completer
	lease    Lifecycle
	cfg      Config
}

func NewOrchestrator(b *bus.Bus, log store.TranscriptLog, glossary store.GlossaryStore, llm Completer, lease Lifecycle, cfg Config) *Orchestrator {
	return &Orchestrator{bus: b, log: log, glossary: glossary, llm: llm, lease: lease, cfg: cfg}
}

// Run consumes status events until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	sub := o.bus.Subscribe(bus.TopicStatus)
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
			if !ok || st.Status != bus.StatusSessionEnded {
				continue
			}
			o.Generate(ctx, st.SessionID)
		}
	}
}

// Generate runs the full summary job for one ended session.
func (o *Orchestrator) Generate(ctx context.Context, sessionID string) {
	ctx, span := trace.StartSpan(ctx, "summary.generate")
	defer span.End()
	log := trace.Logger(ctx).With("session", sessionID)

	// Let in-flight transcription windows land before reading the log.
	select {
	case <-ctx.Done():
		return
	case <-time.After(o.cfg.GraceWait):
	}

	log.Info("summary job started, warming up backend")
	if err := o.warmup(ctx); err != nil {
		log.Error("backend warm-up failed", "error", err)
		o.release(ctx)
		o.finish(sessionID, "", "GPU 喚醒失敗，無法生成摘要")
		return
	}

	records, err := o.log.ReadAll(ctx, sessionID)
	if err != nil {
		log.Error("transcript read failed", "error", err)
		o.release(ctx)
		o.finish(sessionID, "", fmt.Sprintf("讀取轉寫紀錄失敗: %v", err))
		return
	}
	transcript := renderTranscript(records)
	if transcript == "" {
		log.Info("no transcript recorded, skipping summary")
		o.release(ctx)
		o.finish(sessionID, "此會議沒有轉寫紀錄", "")
		return
	}

	var suffix string
	if o.glossary != nil {
		if terms, err := o.glossary.Terms(ctx); err == nil {
			suffix = translate.GlossarySuffix(terms, "zh")
		}
	}

	transcriptLen := utf8.RuneCountInString(transcript)
	log.Info("generating summary", "transcript_chars", transcriptLen)

	input := transcript
	system := promptSingle + suffix
	if transcriptLen > o.cfg.ChunkThreshold {
		input, err = o.mapChunks(ctx, sessionID, transcript, transcriptLen, suffix)
		if err != nil {
			log.Error("chunked summarization failed", "error", err)
			o.release(ctx)
			o.finish(sessionID, "", fmt.Sprintf("摘要生成失敗: %v", err))
			return
		}
		system = promptMerge + suffix
	}

	full, err := o.streamFinal(ctx, sessionID, system, input)
	o.release(ctx)
	if err != nil {
		log.Error("summary stream failed", "error", err)
		o.finish(sessionID, "", fmt.Sprintf("摘要生成失敗: %v", err))
		return
	}

	log.Info("summary complete", "chars", utf8.RuneCountInString(full))
	o.finish(sessionID, full, "")
}

func (o *Orchestrator) warmup(ctx context.Context) error {
	if o.lease == nil {
		return nil
	}
	if err := o.lease.RequestStart(ctx); err != nil {
		return err
	}
	return o.lease.AwaitReady(ctx, o.cfg.WarmupTimeout)
}

func (o *Orchestrator) release(ctx context.Context) {
	if o.lease == nil {
		return
	}
	if err := o.lease.RequestStop(ctx); err != nil {
		slog.Warn("backend release failed", "error", err)
	}
}

// mapChunks runs the map phase over line-preserving chunks and returns the
// joined per-chunk summaries as input for the merge phase. A failed chunk
// degrades to a placeholder instead of failing the job.
func (o *Orchestrator) mapChunks(ctx context.Context, sessionID, transcript string, transcriptLen int, suffix string) (string, error) {
	chunks := text.SplitChunks(transcript, o.cfg.ChunkSize)
	total := len(chunks)

	o.progress(sessionID, fmt.Sprintf("逐字稿較長（%d 字），啟動分段摘要（%d 段）...\n\n", transcriptLen, total))

	parts := make([]string, 0, total)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		o.progress(sessionID, fmt.Sprintf("正在處理第 %d/%d 段...\n", i+1, total))

		user := fmt.Sprintf("以下是會議第 %d/%d 段逐字稿：\n\n%s", i+1, total, chunk)
		part, err := o.llm.Chat(ctx, promptChunk+suffix, user, o.cfg.ChunkMaxTokens, Temperature)
		if err != nil {
			slog.Warn("chunk summary failed", "session", sessionID, "chunk", i+1, "error", err)
			part = fmt.Sprintf("（第 %d 段摘要失敗）", i+1)
		}
		parts = append(parts, fmt.Sprintf("### 第 %d 段摘要\n%s", i+1, part))
	}

	o.progress(sessionID, "\n正在整合所有段落摘要...\n\n")
	return strings.Join(parts, "\n\n"), nil
}

// streamFinal runs the final streamed completion, forwarding buffered deltas
// as chunk events. The buffer flushes on a newline or once it holds a
// line's worth of characters, so the client sees steady progress without
// per-token traffic.
func (o *Orchestrator) streamFinal(ctx context.Context, sessionID, system, input string) (string, error) {
	var full, buf strings.Builder
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		o.progress(sessionID, buf.String())
		buf.Reset()
	}

	err := o.llm.ChatStream(ctx, system, "以下是會議轉寫紀錄：\n\n"+input, o.cfg.MaxTokens, Temperature, func(delta string) {
		full.WriteString(delta)
		buf.WriteString(delta)
		if strings.Contains(buf.String(), "\n") || utf8.RuneCountInString(buf.String()) >= FlushChars {
			flush()
		}
	})
	if err != nil {
		return "", err
	}
	flush()
	return full.String(), nil
}

func (o *Orchestrator) progress(sessionID, chunk string) {
	o.bus.Publish(bus.TopicSummary, bus.Summary{
		SessionID: sessionID,
		Kind:      bus.SummaryKindChunk,
		Chunk:     chunk,
		Timestamp: unixNow(),
	})
}

// finish publishes the terminal event. Exactly one of summary or errMsg is
// set.
func (o *Orchestrator) finish(sessionID, summary, errMsg string) {
	o.bus.Publish(bus.TopicSummary, bus.Summary{
		SessionID: sessionID,
		Kind:      bus.SummaryKindDone,
		Summary:   summary,
		Error:     errMsg,
		Timestamp: unixNow(),
	})
}

// renderTranscript joins records as "[HH:MM:SS] text" lines.
func renderTranscript(records []store.Record) string {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.Text) == "" {
			continue
		}
		if rec.Timestamp.IsZero() {
			lines = append(lines, rec.Text)
			continue
		}
		lines = append(lines, "["+rec.Timestamp.Format("15:04:05")+"] "+rec.Text)
	}
	return strings.Join(lines, "\n")
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

const (
	// Temperature for summary completions.
	Temperature = 0.3
	// FlushChars forces a stream flush once this many characters buffer up
	// without a newline.
	FlushChars = 20
)
