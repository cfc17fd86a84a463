// Package prompt turns a raw transcript into the two-message conversation
// handed to the language model.
package prompt

import (
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-converse/internal/config"
	"github.com/loqalabs/loqa-converse/internal/llm"
)

// markerDelimiter closes the last tag the recognizer prefixes to its text,
// as in "<|zh|><|NEUTRAL|><|Speech|><|woitn|>你好".
const markerDelimiter = ">"

// Conversation is the system turn followed by the user turn.
type Conversation struct {
	System string
	User   string
}

// Messages returns the conversation in chat order.
func (c Conversation) Messages() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: c.System},
		{Role: llm.RoleUser, Content: c.User},
	}
}

type Builder struct {
	system string
	suffix string
}

func NewBuilder(cfg config.LLMConfig) *Builder {
	// Only the first %d is the budget; any other % is literal text.
	suffix := strings.Replace(cfg.InstructionTmpl, "%d", strconv.Itoa(cfg.ReplyCharBudget), 1)
	return &Builder{system: cfg.SystemPrompt, suffix: suffix}
}

// Suffix is the instruction appended to every user turn.
func (b *Builder) Suffix() string { return b.suffix }

// StripMarkers keeps only the text after the last marker delimiter.
func StripMarkers(text string) string {
	parts := strings.Split(text, markerDelimiter)
	return strings.TrimSpace(parts[len(parts)-1])
}

// Build strips recognizer markers from transcript and appends the
// instruction suffix once. The returned utterance is the cleaned transcript
// without the suffix; it is empty when nothing was recognized.
func (b *Builder) Build(transcript string) (Conversation, string) {
	utterance := StripMarkers(transcript)
	return Conversation{
		System: b.system,
		User:   utterance + b.suffix,
	}, utterance
}
