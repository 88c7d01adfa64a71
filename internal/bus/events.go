package bus

// Wire payloads published by the pipeline stages. Timestamps are Unix seconds
// with fractional precision; segment times are absolute seconds from session
// start.

// Segment is one transcribed span with absolute timing.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Transcription carries one transcription pass over a drained audio window.
type Transcription struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Segments  []Segment `json:"segments"`
	Language  string    `json:"language"`
	Timestamp float64   `json:"timestamp"`
}

// Translation is a draft (single segment) or revision (merged segments).
// Revisions supersede the drafts named in SegmentIDs; drafts are never
// retracted.
type Translation struct {
	SessionID      string   `json:"session_id"`
	SourceText     string   `json:"original_text"`
	TranslatedText string   `json:"translated_text"`
	SourceLang     string   `json:"source_lang"`
	TargetLang     string   `json:"target_lang"`
	SegmentIDs     []string `json:"seg_ids"`
	IsRevision     bool     `json:"is_revision"`
	Timestamp      float64  `json:"timestamp"`
}

// SpeakerTurn labels a span with a speaker. Labels are stable only within one
// diarization pass.
type SpeakerTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Diarization carries the turns found in one drained diarization window.
type Diarization struct {
	SessionID     string        `json:"session_id"`
	Speakers      []SpeakerTurn `json:"speakers"`
	AudioDuration float64       `json:"audio_duration"`
	Timestamp     float64       `json:"timestamp"`
}

// Summary kinds.
const (
	SummaryKindChunk = "summary_chunk"
	SummaryKindDone  = "summary_done"
)

// Summary is either an incremental chunk of streamed output or the terminal
// event. A terminal event with Error set marks a failed job.
type Summary struct {
	SessionID string  `json:"session_id"`
	Kind      string  `json:"type"`
	Chunk     string  `json:"chunk,omitempty"`
	Summary   string  `json:"summary,omitempty"`
	Error     string  `json:"error,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// Status values.
const (
	StatusSessionEnded        = "session_ended"
	StatusSessionDisconnected = "session_disconnected"
	StatusRecordingStarted    = "recording_started"
	StatusRecordingStopped    = "recording_stopped"
)

// Status signals session lifecycle transitions.
type Status struct {
	SessionID string  `json:"session_id"`
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

// SessionOf extracts the session id from a known payload type, for routing.
// Unknown payloads return "".
func SessionOf(payload any) string {
	switch p := payload.(type) {
	case Transcription:
		return p.SessionID
	case Translation:
		return p.SessionID
	case Diarization:
		return p.SessionID
	case Summary:
		return p.SessionID
	case Status:
		return p.SessionID
	}
	return ""
}
