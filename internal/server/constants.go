// Package server provides the HTTP and WebSocket gateway.
package server

import "time"

// Server configuration constants
const (
	// WriteTimeout bounds one outbound WebSocket write. A client stuck
	// longer than this is dropped by the router.
	WriteTimeout = 5 * time.Second

	// MaxFrameBytes caps inbound frames. Audio arrives in sub-second
	// chunks; 1 MiB allows ~8 s of float32 PCM at 16 kHz.
	MaxFrameBytes = 1 << 20
)
