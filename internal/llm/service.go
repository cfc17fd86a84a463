package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/loqa-converse/internal/config"
)

type Service struct {
	cfg       config.LLMConfig
	generator Generator
	logger    *slog.Logger
}

func NewService(cfg config.LLMConfig, generator Generator, logger *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		generator: generator,
		logger:    logger.With(slog.String("component", "llm-service")),
	}
}

// NewGenerator picks the backend named by cfg.Mode.
func NewGenerator(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockGenerator(""), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "openai":
		return NewOpenAIGenerator(cfg.Endpoint, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.Mode)
	}
}

// Reply runs one completion and returns the full text with control tokens
// removed.
func (s *Service) Reply(ctx context.Context, turnID string, messages []Message) (string, error) {
	req := Request{
		TurnID:      turnID,
		Messages:    messages,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}
	start := time.Now()
	var (
		b                strings.Builder
		completionTokens int
	)
	err := s.generator.Generate(ctx, req, func(chunk Chunk) error {
		b.WriteString(chunk.Content)
		if chunk.CompletionTokens > 0 {
			completionTokens = chunk.CompletionTokens
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	reply := StripSpecialTokens(b.String())
	s.logger.Info("llm generation complete",
		slog.String("turn_id", turnID),
		slog.Int("completion_tokens", completionTokens),
		slog.Duration("latency", time.Since(start)))
	return reply, nil
}
