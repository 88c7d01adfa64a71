// Package text provides language detection and transcript text utilities.
package text

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/longbridgeapp/opencc"
)

// sentenceEnd matches terminal punctuation in either script.
var sentenceEnd = regexp.MustCompile(`[.!?。！？；：\n]\s*$`)

// HasCJK reports whether the text contains CJK unified ideographs, used to
// pick the translation direction.
func HasCJK(s string) bool {
	for _, r := range s {
		if r >= 0x4e00 && r <= 0x9fff {
			return true
		}
	}
	return false
}

// EndsSentence reports whether the text ends at a sentence boundary.
func EndsSentence(s string) bool {
	return sentenceEnd.MatchString(strings.TrimSpace(s))
}

// SplitChunks splits text into chunks of at most limit characters without
// breaking lines. A line longer than the limit becomes its own chunk.
func SplitChunks(s string, limit int) []string {
	lines := strings.Split(s, "\n")
	var chunks []string
	var current []string
	currentLen := 0

	for _, line := range lines {
		lineLen := utf8.RuneCountInString(line) + 1 // newline
		if currentLen+lineLen > limit && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n"))
			current = []string{line}
			currentLen = lineLen
		} else {
			current = append(current, line)
			currentLen += lineLen
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}
	return chunks
}

// Normalizer converts transcript text to a single canonical script
// (Simplified to Traditional Chinese). Whisper output mixes both variants
// depending on the audio, so the pipeline normalizes every segment.
type Normalizer struct {
	cc *opencc.OpenCC
}

// NewNormalizer loads the s2t conversion dictionaries.
func NewNormalizer() (*Normalizer, error) {
	cc, err := opencc.New("s2t")
	if err != nil {
		return nil, err
	}
	return &Normalizer{cc: cc}, nil
}

// Normalize returns the canonical-script form of s. Conversion errors return
// the input unchanged; normalization must never drop a segment.
func (n *Normalizer) Normalize(s string) string {
	if n == nil || n.cc == nil {
		return s
	}
	out, err := n.cc.Convert(s)
	if err != nil {
		slog.Debug("script normalization failed", "error", err)
		return s
	}
	return out
}
