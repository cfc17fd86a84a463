package stt

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-converse/internal/config"
	"github.com/sashabaranov/go-openai"
)

type openaiRecognizer struct {
	client *openai.Client
	model  string
}

// NewOpenAIRecognizer talks to an OpenAI-compatible transcription endpoint.
func NewOpenAIRecognizer(cfg config.STTConfig) Recognizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &openaiRecognizer{client: openai.NewClientWithConfig(clientCfg), model: model}
}

func (r *openaiRecognizer) Transcribe(ctx context.Context, req Request) (TranscriptResult, error) {
	audioReq := openai.AudioRequest{
		Model:    r.model,
		FilePath: req.AudioPath,
		Format:   openai.AudioResponseFormatJSON,
	}
	if req.Language != "" && req.Language != "auto" && req.Language != "nospeech" {
		audioReq.Language = req.Language
	}
	resp, err := r.client.CreateTranscription(ctx, audioReq)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("openai transcription: %w", err)
	}
	return TranscriptResult{Text: resp.Text, Language: resp.Language}, nil
}
