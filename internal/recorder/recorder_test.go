package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/loqa-converse/internal/audio"
	"github.com/loqalabs/loqa-converse/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type instantTrigger struct{ calls int }

func (t *instantTrigger) Wait(context.Context) error {
	t.calls++
	return nil
}

type fakeSource struct {
	frames   []Frame
	startErr error
	stopErr  error
	wg       sync.WaitGroup
}

func (s *fakeSource) Start(_ context.Context, out chan<- Frame) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, f := range s.frames {
			out <- f
		}
	}()
	return nil
}

func (s *fakeSource) Stop() error {
	s.wg.Wait()
	return s.stopErr
}

func testConfig(t *testing.T) config.RecorderConfig {
	cfg := config.Default().Recorder
	cfg.Path = filepath.Join(t.TempDir(), "my_recording.wav")
	cfg.FrameQueue = 2
	return cfg
}

func TestRecordWritesWav(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{frames: []Frame{{0, 0.5, -0.5}, {1, -1}, {0.25}}}
	trig := &instantTrigger{}
	var prompts strings.Builder
	rec := New(cfg, src, trig, &prompts, newLogger())

	got, err := rec.Record(context.Background())
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if trig.calls != 2 {
		t.Fatalf("expected start and stop signals, got %d waits", trig.calls)
	}
	if got.Samples != 6 {
		t.Fatalf("expected 6 samples, got %d", got.Samples)
	}
	info, err := audio.ReadInfo(cfg.Path)
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if info.SampleRate != 44100 || info.Channels != 1 || info.Samples != 6 {
		t.Fatalf("unexpected wav info: %+v", info)
	}
	if !strings.Contains(prompts.String(), "Press Enter") {
		t.Fatalf("expected user prompt, got %q", prompts.String())
	}
}

func TestRecordStartFailureIsContained(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.Path, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := &fakeSource{startErr: errors.New("no input device")}
	rec := New(cfg, src, &instantTrigger{}, nil, newLogger())

	_, err := rec.Record(context.Background())
	if !errors.Is(err, ErrCapture) {
		t.Fatalf("expected capture error, got %v", err)
	}
	if _, statErr := os.Stat(cfg.Path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected no recording file after failure")
	}
}

func TestRecordDeviceErrorDuringCapture(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{frames: []Frame{{0.1}}, stopErr: errors.New("input overflow")}
	rec := New(cfg, src, &instantTrigger{}, nil, newLogger())

	_, err := rec.Record(context.Background())
	if !errors.Is(err, ErrCapture) {
		t.Fatalf("expected capture error, got %v", err)
	}
	if _, statErr := os.Stat(cfg.Path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("expected no recording file after failure")
	}
}

func TestRecordEmpty(t *testing.T) {
	cfg := testConfig(t)
	rec := New(cfg, &fakeSource{}, &instantTrigger{}, nil, newLogger())
	if _, err := rec.Record(context.Background()); !errors.Is(err, ErrEmptyRecording) {
		t.Fatalf("expected empty recording error, got %v", err)
	}
}

func TestDiscardHonoursRetention(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.Path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Retain = true
	New(cfg, &fakeSource{}, &instantTrigger{}, nil, newLogger()).Discard(Recording{Path: cfg.Path})
	if _, err := os.Stat(cfg.Path); err != nil {
		t.Fatalf("expected retained recording: %v", err)
	}

	cfg.Retain = false
	New(cfg, &fakeSource{}, &instantTrigger{}, nil, newLogger()).Discard(Recording{Path: cfg.Path})
	if _, err := os.Stat(cfg.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected recording removed")
	}
}

func TestLineTrigger(t *testing.T) {
	trig := NewLineTrigger(strings.NewReader("\n\n"))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := trig.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if err := trig.Wait(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after input is exhausted, got %v", err)
	}
}

func TestLineTriggerCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	trig := NewLineTrigger(r)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := trig.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestDecodeFrame(t *testing.T) {
	s16 := decodeFrame([]byte{0xff, 0x7f, 0x01, 0x80}, "s16le")
	if len(s16) != 2 || s16[0] != 1 || s16[1] != -1 {
		t.Fatalf("unexpected s16 frame: %v", s16)
	}
	f32 := decodeFrame([]byte{0x00, 0x00, 0x00, 0x3f}, "f32le")
	if len(f32) != 1 || f32[0] != 0.5 {
		t.Fatalf("unexpected f32 frame: %v", f32)
	}
}

func TestExecSourceCapturesCommandOutput(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	cfg := testConfig(t)
	cfg.Command = `/bin/sh -c 'printf "\377\177\001\200"; exec sleep 5'`
	cfg.FrameSamples = 2
	src, err := NewExecSource(cfg, newLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	frames := make(chan Frame, 4)
	if err := src.Start(context.Background(), frames); err != nil {
		t.Fatalf("start: %v", err)
	}
	frame := <-frames
	if err := src.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(frame) != 2 || frame[0] != 1 || frame[1] != -1 {
		t.Fatalf("unexpected frame %v", frame)
	}
}

func TestExecSourceStopsWhenChildHoldsPipe(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	cfg := testConfig(t)
	// sleep is a child of the shell and keeps stdout open after the shell dies.
	cfg.Command = `/bin/sh -c 'sleep 10; true'`
	src, err := NewExecSource(cfg, newLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if err := src.Start(context.Background(), make(chan Frame, 4)); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	start := time.Now()
	if err := src.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("stop blocked for %s", elapsed)
	}
}

func TestExecSourceEarlyExitIsCaptureError(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	cfg := testConfig(t)
	cfg.Command = `/bin/sh -c 'exit 3'`
	src, err := NewExecSource(cfg, newLogger())
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if err := src.Start(context.Background(), make(chan Frame, 4)); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	err = src.Stop()
	if !errors.Is(err, ErrCapture) {
		t.Fatalf("expected capture error, got %v", err)
	}
	if !strings.Contains(err.Error(), "code 3") {
		t.Fatalf("expected exit code in error, got %v", err)
	}
}
