package llm

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct {
	reply string
}

// NewMockGenerator echoes the last user message unless a fixed reply is
// given.
func NewMockGenerator(reply string) Generator { return &mockGenerator{reply: reply} }

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	content := m.reply
	if content == "" {
		var last string
		for _, msg := range req.Messages {
			if msg.Role == RoleUser {
				last = msg.Content
			}
		}
		content = "[mock completion for " + strings.TrimSpace(last) + "]"
	}
	return consumer(Chunk{
		TurnID:  req.TurnID,
		Content: content,
		Partial: false,
		Latency: 20 * time.Millisecond,
	})
}
