package translate

import (
	"strings"

	"github.com/zzzhilu/concallocalapp/internal/store"
)

// System prompts per direction. Both forbid commentary so the raw completion
// can go straight to the client.
const (
	promptEN2ZH = "你是即時口譯員。直接輸出繁體中文翻譯，不要任何說明、解釋或思考過程。忽略口語贅字，保留專有名詞原文。"
	promptZH2EN = "You are a real-time translator. Output ONLY the English translation. No explanations, no thinking, no extra text."
)

// GlossarySuffix renders the term list for a prompt, oriented by target
// language. Empty when no usable terms exist. Summaries reuse it with the
// "zh" orientation.
func GlossarySuffix(terms []store.Term, targetLang string) string {
	var lines []string
	for _, t := range terms {
		if t.Source == "" || t.Target == "" {
			continue
		}
		if targetLang == "zh" {
			lines = append(lines, "- "+t.Source+" → "+t.Target)
		} else {
			lines = append(lines, "- "+t.Target+" → "+t.Source)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n專有名詞對照：\n" + strings.Join(lines, "\n")
}
