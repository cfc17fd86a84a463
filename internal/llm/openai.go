package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
)

type openaiGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator targets any OpenAI-compatible chat completion server
// (vLLM, llama.cpp server, the hosted API).
func NewOpenAIGenerator(endpoint, apiKey, model string) Generator {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return &openaiGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

func (g *openaiGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("openai chat completion returned no choices")
	}
	return consumer(Chunk{
		TurnID:           req.TurnID,
		Content:          resp.Choices[0].Message.Content,
		Partial:          false,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Latency:          time.Since(start),
	})
}
