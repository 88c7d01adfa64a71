// Package store persists per-session transcripts and the shared translation
// glossary.
package store

import (
	"context"
	"time"
)

// Record is one appended transcript line.
type Record struct {
	Timestamp time.Time
	Text      string
	Language  string
}

// TranscriptLog accumulates the lines a session produced, in order, for the
// end-of-session summary.
type TranscriptLog interface {
	Append(ctx context.Context, sessionID string, rec Record) error
	ReadAll(ctx context.Context, sessionID string) ([]Record, error)
}

// Term maps an English source term to its preferred rendering.
type Term struct {
	Source string
	Target string
}

// GlossaryStore serves the domain terms injected into translation prompts.
type GlossaryStore interface {
	Terms(ctx context.Context) ([]Term, error)
}
