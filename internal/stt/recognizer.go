package stt

import (
	"context"
)

// Cache is opaque engine state reused across calls (e.g. streaming context
// for models that keep one). Backends that do not need it ignore it.
type Cache map[string]any

// Request names an audio file to recognize.
type Request struct {
	AudioPath string
	Language  string // auto, zh, en, yue, ja, ko, nospeech
	UseITN    bool
	Cache     Cache
}

// TranscriptResult captures recognizer output. Text may still carry engine
// markers such as "<|zh|><|NEUTRAL|>".
type TranscriptResult struct {
	Text       string
	Language   string
	Confidence float64
}

// Recognizer abstracts STT backends.
type Recognizer interface {
	Transcribe(ctx context.Context, req Request) (TranscriptResult, error)
}
