package tts

import "context"

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	TurnID string
	Text   string
	Voice  string
	Stream bool
}

// SynthChunk is one buffer of little-endian 16-bit PCM.
type SynthChunk struct {
	TurnID     string
	Sequence   int
	Voice      string
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio. The chunk channel yields
// a finite, ordered sequence and is closed when synthesis ends; at most one
// error is sent on the error channel.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}
