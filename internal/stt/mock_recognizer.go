package stt

import (
	"context"
	"fmt"
	"os"
)

type mockRecognizer struct {
	text string
}

// NewMockRecognizer returns a recognizer that answers every request with
// text, after checking that the audio file exists.
func NewMockRecognizer(text string) Recognizer {
	return &mockRecognizer{text: text}
}

func (m *mockRecognizer) Transcribe(_ context.Context, req Request) (TranscriptResult, error) {
	if _, err := os.Stat(req.AudioPath); err != nil {
		return TranscriptResult{}, fmt.Errorf("mock stt: %w", err)
	}
	lang := req.Language
	if lang == "" || lang == "auto" {
		lang = "zh"
	}
	return TranscriptResult{Text: m.text, Language: lang}, nil
}
