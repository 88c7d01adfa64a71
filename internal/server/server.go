// Package server provides the HTTP and WebSocket gateway: audio in over
// binary frames, pipeline events out as JSON envelopes.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/zzzhilu/concallocalapp/internal/bus"
	"github.com/zzzhilu/concallocalapp/internal/pcm"
	"github.com/zzzhilu/concallocalapp/internal/pipeline"
	"github.com/zzzhilu/concallocalapp/internal/session"
	"github.com/zzzhilu/concallocalapp/internal/trace"
)

// Envelope wraps every outbound WebSocket message.
type Envelope struct {
	Event     string  `json:"event"`
	Data      any     `json:"data"`
	Timestamp float64 `json:"timestamp,omitempty"`
}

// control is the inbound text-frame protocol.
type control struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
}

// Ingestor receives decoded audio from connections.
type Ingestor interface {
	Ingest(c pipeline.Chunk)
}

// SessionNotifier is told when a client declares its session mode.
type SessionNotifier interface {
	SessionStarted(ctx context.Context, sessionID string, mode session.Mode)
}

// Server handles WebSocket connections and fans pipeline events back out.
// Events carrying a session id go only to that session's connection; the
// rest broadcast.
type Server struct {
	bus      *bus.Bus
	registry *session.Registry
	ingest   Ingestor
	notify   SessionNotifier

	mu    sync.RWMutex
	conns map[*websocket.Conn]string
}

func New(b *bus.Bus, reg *session.Registry, ingest Ingestor, notify SessionNotifier) *Server {
	return &Server{
		bus:      b,
		registry: reg,
		ingest:   ingest,
		notify:   notify,
		conns:    make(map[*websocket.Conn]string),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.registry.Len(),
	})
}

// Run fans bus events out to connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	sub := s.bus.Subscribe(
		bus.TopicTranscriptions,
		bus.TopicTranslations,
		bus.TopicDiarization,
		bus.TopicSummary,
		bus.TopicStatus,
	)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			s.route(ctx, ev)
		}
	}
}

// route delivers one event: to the owning session's connection when the
// payload names one that is connected, otherwise to everyone. A connection
// that fails its write is dropped.
func (s *Server) route(ctx context.Context, ev bus.Event) {
	env := Envelope{
		Event:     eventName(ev.Topic),
		Data:      ev.Payload,
		Timestamp: unixSeconds(time.Now()),
	}
	sessionID := bus.SessionOf(ev.Payload)

	var targets []*websocket.Conn
	s.mu.RLock()
	for conn, sid := range s.conns {
		if sessionID == "" || sid == sessionID {
			targets = append(targets, conn)
		}
	}
	s.mu.RUnlock()
	if sessionID != "" && len(targets) == 0 {
		// Owner not connected; fall back to broadcast so observers
		// (dashboards, late rejoins) still see the event.
		s.mu.RLock()
		for conn := range s.conns {
			targets = append(targets, conn)
		}
		s.mu.RUnlock()
	}

	for _, conn := range targets {
		wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
		err := wsjson.Write(wctx, conn, env)
		cancel()
		if err != nil {
			slog.Warn("event delivery failed, dropping connection", "event", env.Event, "error", err)
			s.drop(conn)
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	conn.SetReadLimit(MaxFrameBytes)

	sessionID := uuid.NewString()
	s.mu.Lock()
	s.conns[conn] = sessionID
	s.mu.Unlock()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr, "session", sessionID)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		// Late results for a gone client are useless; tell the stages to
		// release their session state.
		s.bus.Publish(bus.TopicStatus, bus.Status{
			SessionID: sessionID,
			Status:    bus.StatusSessionDisconnected,
			Timestamp: unixSeconds(time.Now()),
		})
		log.Info("websocket disconnected", "session", sessionID)
	}()

	s.send(baseCtx, conn, Envelope{
		Event: "connected",
		Data:  map[string]string{"session_id": sessionID},
	})

	for {
		typ, data, err := conn.Read(baseCtx)
		if err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		switch typ {
		case websocket.MessageText:
			sessionID = s.handleControl(baseCtx, conn, sessionID, data)
		case websocket.MessageBinary:
			if len(data) == 0 {
				continue
			}
			s.ingest.Ingest(pipeline.Chunk{
				SessionID: sessionID,
				Samples:   pcm.BytesToFloat32(data),
			})
		}
	}
}

// handleControl applies one control command and returns the (possibly
// rebound) session id for the connection.
func (s *Server) handleControl(ctx context.Context, conn *websocket.Conn, sessionID string, data []byte) string {
	var cmd control
	if err := json.Unmarshal(data, &cmd); err != nil {
		return sessionID
	}
	if tc, ok := trace.ExtractFromJSON(data); ok {
		ctx = trace.WithContext(ctx, tc)
	}
	log := trace.Logger(ctx)

	switch cmd.Action {
	case "start":
		if cmd.SessionID != "" && cmd.SessionID != sessionID {
			s.mu.Lock()
			s.conns[conn] = cmd.SessionID
			s.mu.Unlock()
			sessionID = cmd.SessionID
		}
		mode := modeFor(cmd.Language)
		s.registry.Start(sessionID, mode)
		if s.notify != nil {
			s.notify.SessionStarted(ctx, sessionID, mode)
		}
		log.Info("recording started", "session", sessionID, "mode", mode)
		s.send(ctx, conn, Envelope{
			Event: "status",
			Data: map[string]string{
				"message":    bus.StatusRecordingStarted,
				"session_id": sessionID,
				"language":   string(mode),
			},
		})

	case "stop":
		log.Info("recording stopped", "session", sessionID)
		s.bus.Publish(bus.TopicStatus, bus.Status{
			SessionID: sessionID,
			Status:    bus.StatusSessionEnded,
			Timestamp: unixSeconds(time.Now()),
		})
		s.send(ctx, conn, Envelope{
			Event: "status",
			Data: map[string]string{
				"message":    bus.StatusRecordingStopped,
				"session_id": sessionID,
			},
		})
	}
	return sessionID
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, env Envelope) {
	wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, conn, env); err != nil {
		slog.Debug("websocket write failed", "event", env.Event, "error", err)
	}
}

// modeFor maps the wire language value to a session mode. Unknown values get
// the Chinese-only default, which keeps the heavy backend off.
func modeFor(language string) session.Mode {
	switch language {
	case "en", "en-translate":
		return session.ModeEN
	case "bilingual":
		return session.ModeBilingual
	default:
		return session.ModeZH
	}
}

func eventName(t bus.Topic) string {
	switch t {
	case bus.TopicTranscriptions:
		return "transcription"
	case bus.TopicTranslations:
		return "translation"
	case bus.TopicDiarization:
		return "diarization"
	case bus.TopicSummary:
		return "summary"
	case bus.TopicStatus:
		return "status"
	default:
		return "unknown"
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
