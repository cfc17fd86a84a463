package stt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-converse/internal/config"
)

// Service binds a recognizer to the configured language hint, normalization
// flag and a cache that lives as long as the service.
type Service struct {
	cfg        config.STTConfig
	recognizer Recognizer
	cache      Cache
	logger     *slog.Logger
}

func NewService(cfg config.STTConfig, recognizer Recognizer, logger *slog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		recognizer: recognizer,
		cache:      Cache{},
		logger:     logger.With(slog.String("component", "stt-service")),
	}
}

// NewRecognizer picks the backend named by cfg.Mode.
func NewRecognizer(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockRecognizer(cfg.MockText), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "openai":
		return NewOpenAIRecognizer(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}
}

// Transcribe recognizes the audio file at path.
func (s *Service) Transcribe(ctx context.Context, path string) (TranscriptResult, error) {
	start := time.Now()
	result, err := s.recognizer.Transcribe(ctx, Request{
		AudioPath: path,
		Language:  s.cfg.Language,
		UseITN:    s.cfg.UseITN,
		Cache:     s.cache,
	})
	if err != nil {
		return TranscriptResult{}, err
	}
	s.logger.Info("transcription complete",
		slog.String("text", result.Text),
		slog.String("language", result.Language),
		slog.Duration("latency", time.Since(start)))
	return result, nil
}
