package llm

import (
	"regexp"
	"strings"
)

// ApplyChatTemplate renders messages in the ChatML layout used by Qwen
// instruct models. With addGenerationPrompt the result ends with an open
// assistant turn for the model to complete.
func ApplyChatTemplate(messages []Message, addGenerationPrompt bool) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString("<|im_start|>")
		b.WriteString(m.Role)
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString("<|im_end|>\n")
	}
	if addGenerationPrompt {
		b.WriteString("<|im_start|>")
		b.WriteString(RoleAssistant)
		b.WriteString("\n")
	}
	return b.String()
}

var specialToken = regexp.MustCompile(`<\|[^|<>]*\|>`)

// StripSpecialTokens removes <|...|> control tokens from decoded output.
func StripSpecialTokens(text string) string {
	return strings.TrimSpace(specialToken.ReplaceAllString(text, ""))
}
