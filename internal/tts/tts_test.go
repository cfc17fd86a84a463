package tts

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/loqalabs/loqa-converse/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func drain(t *testing.T, chunks <-chan SynthChunk, errs <-chan error) []SynthChunk {
	t.Helper()
	var out []SynthChunk
	for chunk := range chunks {
		out = append(out, chunk)
	}
	for err := range errs {
		if err != nil {
			t.Fatalf("synthesis error: %v", err)
		}
	}
	return out
}

func TestServiceUsesConfiguredVoice(t *testing.T) {
	cfg := config.Default().TTS
	cfg.MockChunks = 3
	synth, err := NewSynthesizer(cfg)
	if err != nil {
		t.Fatalf("new synthesizer: %v", err)
	}
	chunks, errs := NewService(cfg, synth, newLogger()).Synthesize(context.Background(), "turn-1", "晴天，25度")
	got := drain(t, chunks, errs)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, c := range got {
		if c.Sequence != i || c.Voice != "中文女" || c.SampleRate != 22050 {
			t.Fatalf("unexpected chunk %d: seq=%d voice=%s rate=%d", i, c.Sequence, c.Voice, c.SampleRate)
		}
		if len(c.PCM) != 22050/10*2 {
			t.Fatalf("unexpected pcm length %d", len(c.PCM))
		}
	}
	if !got[2].Final || got[0].Final {
		t.Fatalf("expected only the last chunk to be final")
	}
}

func TestMockSynthCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chunks, errs := NewMockSynth(22050, 1, 1).Synthesize(ctx, SynthRequest{Text: "x"})
	for range chunks {
		t.Fatalf("expected no chunks")
	}
	if err := <-errs; err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestExecSynthParsesLines(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	synth, err := NewExecSynth(`/bin/sh -c 'cat >/dev/null; echo "{\"pcm_base64\":\"AAABAA==\"}"; echo "{\"pcm_base64\":\"AgA=\",\"final\":true}"'`, 22050, 1)
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	chunks, errs := synth.Synthesize(context.Background(), SynthRequest{Text: "晴天", Voice: "中文女"})
	got := drain(t, chunks, errs)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if len(got[0].PCM) != 4 || len(got[1].PCM) != 2 || !got[1].Final {
		t.Fatalf("unexpected chunks %+v", got)
	}
	if got[1].Sequence != 1 || got[1].Voice != "中文女" {
		t.Fatalf("unexpected chunk metadata %+v", got[1])
	}
}

func TestExecSynthCommandFailure(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	synth, err := NewExecSynth(`/bin/sh -c 'cat >/dev/null; exit 3'`, 22050, 1)
	if err != nil {
		t.Fatalf("new synth: %v", err)
	}
	chunks, errs := synth.Synthesize(context.Background(), SynthRequest{Text: "x"})
	for range chunks {
	}
	if err := <-errs; err == nil {
		t.Fatalf("expected command failure")
	}
}
