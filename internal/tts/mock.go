package tts

import (
	"context"
	"encoding/binary"
	"math"
	"time"
)

type mockSynth struct {
	sampleRate int
	channels   int
	chunks     int
}

// NewMockSynth produces count short sine-tone chunks per request.
func NewMockSynth(sampleRate, channels, count int) Synthesizer {
	if count <= 0 {
		count = 1
	}
	return &mockSynth{sampleRate: sampleRate, channels: channels, chunks: count}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, m.chunks)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-time.After(50 * time.Millisecond):
		}
		for i := 0; i < m.chunks; i++ {
			chunks <- SynthChunk{
				TurnID:     req.TurnID,
				Sequence:   i,
				Voice:      req.Voice,
				SampleRate: m.sampleRate,
				Channels:   m.channels,
				PCM:        tone(m.sampleRate/10, m.sampleRate, m.channels),
				Final:      i == m.chunks-1,
			}
		}
	}()
	return chunks, errs
}

func tone(frames, sampleRate, channels int) []byte {
	pcm := make([]byte, frames*channels*2)
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint16(pcm[(i*channels+c)*2:], uint16(v))
		}
	}
	return pcm
}
