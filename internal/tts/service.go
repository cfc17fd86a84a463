package tts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-converse/internal/config"
)

// Service applies the configured voice and streaming flag to synthesis
// requests.
type Service struct {
	cfg    config.TTSConfig
	synth  Synthesizer
	logger *slog.Logger
}

func NewService(cfg config.TTSConfig, synth Synthesizer, log *slog.Logger) *Service {
	return &Service{
		cfg:    cfg,
		synth:  synth,
		logger: log.With(slog.String("component", "tts-service")),
	}
}

// NewSynthesizer picks the backend named by cfg.Mode.
func NewSynthesizer(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels, cfg.MockChunks), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}

// Synthesize starts synthesis of text with the configured voice.
func (s *Service) Synthesize(ctx context.Context, turnID, text string) (<-chan SynthChunk, <-chan error) {
	s.logger.Info("synthesizing reply",
		slog.String("turn_id", turnID),
		slog.String("voice", s.cfg.Voice),
		slog.Bool("stream", s.cfg.Stream))
	return s.synth.Synthesize(ctx, SynthRequest{
		TurnID: turnID,
		Text:   text,
		Voice:  s.cfg.Voice,
		Stream: s.cfg.Stream,
	})
}
