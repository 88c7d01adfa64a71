// Package translate turns transcription events into draft translations and
// progressive sentence-level revisions.
package translate

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/zzzhilu/concallocalapp/internal/bus"
	"github.com/zzzhilu/concallocalapp/internal/session"
	"github.com/zzzhilu/concallocalapp/internal/store"
	"github.com/zzzhilu/concallocalapp/internal/syncx"
	"github.com/zzzhilu/concallocalapp/internal/text"
)

// Completer produces one chat completion.
type Completer interface {
	Chat(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error)
}

// Lifecycle is the heavy-backend control surface the engine drives when a
// session declares its language mode.
type Lifecycle interface {
	RequestStart(ctx context.Context) error
	RequestStop(ctx context.Context) error
}

// Config tunes the revision window and glossary cache.
type Config struct {
	MergeWindow      int
	RevisionMinChars int
	RevisionMaxChars int
	GlossaryTTL      time.Duration
	MaxTokens        int
}

type segment struct {
	id   string
	text string
}

type glossaryCache struct {
	terms   []store.Term
	fetched time.Time
}

// Engine consumes transcriptions and publishes translations. Each session
// keeps a sliding window of recent segments; when the latest segment closes a
// sentence, the window is retranslated as one unit and published as a
// revision superseding the drafts.
type Engine struct {
	bus      *bus.Bus
	registry *session.Registry
	llm      Completer
	glossary store.GlossaryStore
	lease    Lifecycle
	cfg      Config

	cache *syncx.RWGuard[glossaryCache]

	mu       sync.Mutex
	windows  map[string][]segment
	lastHash map[string]string
}

func NewEngine(b *bus.Bus, reg *session.Registry, llm Completer, glossary store.GlossaryStore, lease Lifecycle, cfg Config) *Engine {
	return &Engine{
		bus:      b,
		registry: reg,
		llm:      llm,
		glossary: glossary,
		lease:    lease,
		cfg:      cfg,
		cache:    syncx.NewGuard(glossaryCache{}),
		windows:  make(map[string][]segment),
		lastHash: make(map[string]string),
	}
}

// SessionStarted resets progressive state for the session and applies the
// heavy-backend policy for its mode: translation modes bring the backend up
// ahead of the first segment, Chinese-only mode releases it.
func (e *Engine) SessionStarted(ctx context.Context, sessionID string, mode session.Mode) {
	e.mu.Lock()
	delete(e.windows, sessionID)
	delete(e.lastHash, sessionID)
	e.mu.Unlock()

	if e.lease == nil {
		return
	}
	if mode.NeedsTranslation() {
		if err := e.lease.RequestStart(ctx); err != nil {
			slog.Error("backend start for translation failed", "session", sessionID, "error", err)
		}
	} else {
		if err := e.lease.RequestStop(ctx); err != nil {
			slog.Error("backend release failed", "session", sessionID, "error", err)
		}
	}
}

// Run consumes bus events until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	sub := e.bus.Subscribe(bus.TopicTranscriptions, bus.TopicStatus)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			switch p := ev.Payload.(type) {
			case bus.Transcription:
				e.handleTranscription(ctx, p)
			case bus.Status:
				if p.Status == bus.StatusSessionEnded || p.Status == bus.StatusSessionDisconnected {
					e.mu.Lock()
					delete(e.windows, p.SessionID)
					delete(e.lastHash, p.SessionID)
					e.mu.Unlock()
				}
			}
		}
	}
}

func (e *Engine) handleTranscription(ctx context.Context, tr bus.Transcription) {
	if !e.registry.Mode(tr.SessionID).NeedsTranslation() {
		return
	}
	src := strings.TrimSpace(tr.Text)
	if src == "" {
		return
	}

	segID := fmt.Sprintf("%s_%d", tr.SessionID, time.Now().UnixMilli())
	recent := e.pushSegment(tr.SessionID, segment{id: segID, text: src})

	// Draft first: the raw segment goes out immediately so the client never
	// waits on the merge heuristics.
	translated, srcLang, tgtLang, err := e.translate(ctx, src, tr.Language)
	if err != nil {
		slog.Warn("draft translation failed", "session", tr.SessionID, "error", err)
		return
	}
	e.bus.Publish(bus.TopicTranslations, bus.Translation{
		SessionID:      tr.SessionID,
		SourceText:     src,
		TranslatedText: translated,
		SourceLang:     srcLang,
		TargetLang:     tgtLang,
		SegmentIDs:     []string{segID},
		Timestamp:      unixNow(),
	})

	e.maybeRevise(ctx, tr.SessionID, recent, src, tr.Language)
}

// maybeRevise retranslates the merged window when the newest segment ends a
// sentence and the merged length sits inside the revision bounds.
func (e *Engine) maybeRevise(ctx context.Context, sessionID string, recent []segment, latest, srcLang string) {
	parts := make([]string, len(recent))
	ids := make([]string, len(recent))
	for i, s := range recent {
		parts[i] = s.text
		ids[i] = s.id
	}
	merged := strings.Join(parts, " ")
	mergedLen := utf8.RuneCountInString(merged)

	shouldRevise := len(recent) >= 2 &&
		mergedLen >= e.cfg.RevisionMinChars &&
		mergedLen <= e.cfg.RevisionMaxChars &&
		text.EndsSentence(latest)

	if shouldRevise {
		if hash := md5Hex(merged); hash != e.swapHash(sessionID, hash) {
			translated, detected, tgtLang, err := e.translate(ctx, merged, srcLang)
			if err != nil {
				slog.Warn("revision translation failed", "session", sessionID, "error", err)
			} else {
				e.bus.Publish(bus.TopicTranslations, bus.Translation{
					SessionID:      sessionID,
					SourceText:     merged,
					TranslatedText: translated,
					SourceLang:     detected,
					TargetLang:     tgtLang,
					SegmentIDs:     ids,
					IsRevision:     true,
					Timestamp:      unixNow(),
				})
				slog.Info("published revision", "session", sessionID, "segments", len(recent))
			}
		}
		// Sentence closed; the next segment starts a fresh window.
		e.mu.Lock()
		delete(e.windows, sessionID)
		e.mu.Unlock()
		return
	}

	if mergedLen > e.cfg.RevisionMaxChars {
		// Run-on speech with no boundary. Keep only the newest segment so
		// the window cannot grow without bound.
		e.mu.Lock()
		e.windows[sessionID] = recent[len(recent)-1:]
		e.mu.Unlock()
	}
}

// translate resolves direction, builds the prompt with glossary terms, and
// runs the completion. Language "auto" is detected from the script.
func (e *Engine) translate(ctx context.Context, src, srcLang string) (translated, detected, target string, err error) {
	detected = srcLang
	if detected == "" || detected == "auto" {
		if text.HasCJK(src) {
			detected = "zh"
		} else {
			detected = "en"
		}
	}
	target = "zh"
	if detected == "zh" {
		target = "en"
	}

	system := promptEN2ZH
	if target == "en" {
		system = promptZH2EN
	}
	system += GlossarySuffix(e.terms(ctx), target)

	out, err := e.llm.Chat(ctx, system, src, e.cfg.MaxTokens, Temperature)
	if err != nil {
		return "", detected, target, err
	}
	return out, detected, target, nil
}

// terms returns glossary entries, refreshed at most once per TTL. A failed
// refresh serves the stale copy.
func (e *Engine) terms(ctx context.Context) []store.Term {
	if e.glossary == nil {
		return nil
	}
	cached := e.cache.Get()
	if cached.fetched.After(time.Now().Add(-e.cfg.GlossaryTTL)) {
		return cached.terms
	}

	fresh, err := e.glossary.Terms(ctx)
	if err != nil {
		slog.Warn("glossary refresh failed, serving cached terms", "error", err)
		return cached.terms
	}
	e.cache.Set(glossaryCache{terms: fresh, fetched: time.Now()})
	return fresh
}

// pushSegment appends to the session window, trimming to the merge size, and
// returns a snapshot of the window.
func (e *Engine) pushSegment(sessionID string, seg segment) []segment {
	e.mu.Lock()
	defer e.mu.Unlock()

	w := append(e.windows[sessionID], seg)
	if len(w) > e.cfg.MergeWindow {
		w = w[len(w)-e.cfg.MergeWindow:]
	}
	e.windows[sessionID] = w

	out := make([]segment, len(w))
	copy(out, w)
	return out
}

// swapHash stores the merged-text hash for the session and returns the
// previous one, so identical windows are translated only once.
func (e *Engine) swapHash(sessionID, hash string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.lastHash[sessionID]
	e.lastHash[sessionID] = hash
	return prev
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
