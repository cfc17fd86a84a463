package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/loqalabs/loqa-converse/internal/audio"
	"github.com/loqalabs/loqa-converse/internal/config"
)

// Recording is a captured utterance written to disk.
type Recording struct {
	Path       string
	SampleRate int
	Channels   int
	Samples    int
	Duration   time.Duration
}

// Recorder captures one utterance between two trigger signals.
type Recorder struct {
	cfg     config.RecorderConfig
	source  Source
	trigger Trigger
	prompt  io.Writer
	log     *slog.Logger
}

// New builds a recorder. Prompts for the user are written to prompt, which
// may be nil.
func New(cfg config.RecorderConfig, source Source, trigger Trigger, prompt io.Writer, log *slog.Logger) *Recorder {
	if prompt == nil {
		prompt = io.Discard
	}
	return &Recorder{
		cfg:     cfg,
		source:  source,
		trigger: trigger,
		prompt:  prompt,
		log:     log.With(slog.String("component", "recorder")),
	}
}

// Record waits for the start signal, captures until the stop signal and
// writes a mono 16-bit WAV file at the configured path.
//
// Capture failures are wrapped with ErrCapture and leave no file behind; the
// caller is expected to skip the turn. Errors from the trigger itself (input
// closed, ctx cancelled) are returned unwrapped.
func (r *Recorder) Record(ctx context.Context) (Recording, error) {
	fmt.Fprintln(r.prompt, "Press Enter to start recording...")
	if err := r.trigger.Wait(ctx); err != nil {
		return Recording{}, err
	}

	// A failed capture must not leave the previous turn's audio in place.
	if err := os.Remove(r.cfg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Recording{}, fmt.Errorf("remove stale recording: %w", err)
	}

	frames := make(chan Frame, r.cfg.FrameQueue)
	var (
		mu        sync.Mutex
		collected []float32
		wg        sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for frame := range frames {
			mu.Lock()
			collected = append(collected, frame...)
			mu.Unlock()
		}
	}()

	if err := r.source.Start(ctx, frames); err != nil {
		close(frames)
		wg.Wait()
		r.log.Warn("recording failed to start", slog.String("error", err.Error()))
		return Recording{}, asCaptureError(err)
	}
	fmt.Fprintln(r.prompt, "Recording... press Enter to stop")

	waitErr := r.trigger.Wait(ctx)
	stopErr := r.source.Stop()
	close(frames)
	wg.Wait()

	if waitErr != nil {
		return Recording{}, waitErr
	}
	if stopErr != nil {
		r.log.Warn("recording failed", slog.String("error", stopErr.Error()))
		return Recording{}, asCaptureError(stopErr)
	}

	mu.Lock()
	samples := audio.FloatToPCM16(collected)
	mu.Unlock()
	if len(samples) == 0 {
		return Recording{}, ErrEmptyRecording
	}

	if err := audio.WriteWAV(r.cfg.Path, samples, r.cfg.SampleRate, r.cfg.Channels); err != nil {
		return Recording{}, err
	}
	rec := Recording{
		Path:       r.cfg.Path,
		SampleRate: r.cfg.SampleRate,
		Channels:   r.cfg.Channels,
		Samples:    len(samples),
		Duration:   time.Duration(len(samples)) * time.Second / time.Duration(r.cfg.SampleRate),
	}
	r.log.Info("recording saved",
		slog.String("path", rec.Path),
		slog.Duration("duration", rec.Duration))
	return rec, nil
}

// Discard removes the recording unless the configuration retains it.
func (r *Recorder) Discard(rec Recording) {
	if r.cfg.Retain || rec.Path == "" {
		return
	}
	if err := os.Remove(rec.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.log.Warn("failed to remove recording", slog.String("path", rec.Path), slog.String("error", err.Error()))
	}
}

func asCaptureError(err error) error {
	if errors.Is(err, ErrCapture) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCapture, err)
}
