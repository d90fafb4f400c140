package llm

import (
	"regexp"
	"strings"
)

// reasoningBlock matches the <think> sections some open-weight models
// (DeepSeek R1, Qwen) emit ahead of the answer. An unterminated block runs to
// the end of the text.
var reasoningBlock = regexp.MustCompile(`(?s)<think>.*?(?:</think>|$)`)

// StripReasoning removes reasoning blocks and surrounding whitespace.
func StripReasoning(s string) string {
	if !strings.Contains(s, "<think>") {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(reasoningBlock.ReplaceAllString(s, ""))
}
