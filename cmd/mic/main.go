// Mic client - streams microphone audio to a concall server over WebSocket
// and prints the events coming back.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/zzzhilu/concallocalapp/internal/audio"
	"github.com/zzzhilu/concallocalapp/internal/pcm"
)

func main() {
	var (
		serverURL  = flag.String("server", "ws://localhost:8080/ws", "server WebSocket URL")
		sessionID  = flag.String("session", "", "session id (server assigns one when empty)")
		language   = flag.String("language", "bilingual", "session language: zh, en, or bilingual")
		sampleRate = flag.Int("rate", 16000, "capture sample rate")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, *serverURL, nil)
	dialCancel()
	if err != nil {
		slog.Error("dial failed", "url", *serverURL, "error", err)
		os.Exit(1)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Chunks of ~0.25s keep frames small and latency low.
	capturer, err := audio.NewCapturer(*sampleRate, *sampleRate/4, 64)
	if err != nil {
		slog.Error("audio init failed", "error", err)
		os.Exit(1)
	}
	defer capturer.Stop()

	start := map[string]string{"action": "start", "language": *language}
	if *sessionID != "" {
		start["session_id"] = *sessionID
	}
	if err := wsjson.Write(ctx, conn, start); err != nil {
		slog.Error("start command failed", "error", err)
		os.Exit(1)
	}

	if err := capturer.Start(ctx); err != nil {
		slog.Error("capture start failed", "error", err)
		os.Exit(1)
	}

	// Print server events as they arrive.
	go func() {
		defer cancel()
		for {
			var env struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			if err := wsjson.Read(ctx, conn, &env); err != nil {
				return
			}
			fmt.Printf("[%s] %s\n", env.Event, env.Data)
		}
	}()

	slog.Info("streaming", "server", *serverURL, "language", *language)

	for {
		select {
		case <-sigCh:
			slog.Info("stopping session")
			capturer.Stop()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = wsjson.Write(stopCtx, conn, map[string]string{"action": "stop"})
			// Give the server a moment to flush the summary events.
			select {
			case <-stopCtx.Done():
			case <-time.After(2 * time.Second):
			}
			stopCancel()
			return
		case <-ctx.Done():
			return
		case samples, ok := <-capturer.Output():
			if !ok {
				return
			}
			if err := conn.Write(ctx, websocket.MessageBinary, pcm.Float32ToBytes(samples)); err != nil {
				slog.Error("audio send failed", "error", err)
				return
			}
		}
	}
}
