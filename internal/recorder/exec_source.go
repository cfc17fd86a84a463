package recorder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"sync"
	"time"

	"github.com/loqalabs/loqa-converse/internal/config"
	"github.com/mattn/go-shellwords"
)

const stopWaitDelay = 500 * time.Millisecond

// ExecSource captures audio by running an external command that writes raw
// PCM to stdout, e.g. `arecord -q -t raw -f S16_LE -c 1 -r 44100`.
type ExecSource struct {
	cmd          []string
	format       string
	frameSamples int
	log          *slog.Logger

	mu      sync.Mutex
	proc    *exec.Cmd
	cancel  context.CancelFunc
	done    chan struct{}
	readErr error
}

func NewExecSource(cfg config.RecorderConfig, log *slog.Logger) (*ExecSource, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse recorder command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recorder command is empty")
	}
	return &ExecSource{
		cmd:          args,
		format:       cfg.SampleFormat,
		frameSamples: cfg.FrameSamples,
		log:          log.With(slog.String("component", "exec-source")),
	}, nil
}

func (s *ExecSource) bytesPerSample() int {
	if s.format == "f32le" {
		return 4
	}
	return 2
}

func (s *ExecSource) Start(ctx context.Context, frames chan<- Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != nil {
		return fmt.Errorf("%w: capture already running", ErrCapture)
	}

	runCtx, cancel := context.WithCancel(ctx)
	proc := exec.CommandContext(runCtx, s.cmd[0], s.cmd[1:]...)
	// A child of the capture command may keep stdout open after the kill;
	// Wait then closes the pipe itself once this delay has passed.
	proc.WaitDelay = stopWaitDelay
	stdout, err := proc.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrCapture, err)
	}
	if err := proc.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: start %s: %v", ErrCapture, s.cmd[0], err)
	}

	s.proc = proc
	s.cancel = cancel
	s.done = make(chan struct{})
	s.readErr = nil

	go s.readFrames(runCtx, stdout, frames)
	return nil
}

func (s *ExecSource) readFrames(ctx context.Context, stdout io.Reader, frames chan<- Frame) {
	defer close(s.done)
	width := s.bytesPerSample()
	buf := make([]byte, s.frameSamples*width)
	for {
		n, err := io.ReadFull(stdout, buf)
		if n >= width {
			frame := decodeFrame(buf[:n-n%width], s.format)
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || ctx.Err() != nil {
				return
			}
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
	}
}

// Stop terminates the capture command and waits for the reader to finish.
// Wait runs first so the pipe is closed even when the command left a child
// holding it.
func (s *ExecSource) Stop() error {
	s.mu.Lock()
	proc, cancel, done := s.proc, s.cancel, s.done
	s.mu.Unlock()
	if proc == nil {
		return nil
	}

	cancel()
	waitErr := proc.Wait()
	<-done

	s.mu.Lock()
	readErr := s.readErr
	s.proc, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()

	if readErr != nil {
		return fmt.Errorf("%w: read: %v", ErrCapture, readErr)
	}
	// The command is killed on purpose; only a failure that happened before
	// the kill (exit before Stop) says anything about the device.
	var exitErr *exec.ExitError
	if waitErr != nil && errors.As(waitErr, &exitErr) && exitErr.ProcessState != nil && exitErr.ProcessState.Exited() {
		s.log.Warn("capture command exited early", slog.Int("code", exitErr.ExitCode()))
		return fmt.Errorf("%w: capture command exited with code %d", ErrCapture, exitErr.ExitCode())
	}
	return nil
}

func decodeFrame(raw []byte, format string) Frame {
	if format == "f32le" {
		frame := make(Frame, len(raw)/4)
		for i := range frame {
			frame[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return frame
	}
	frame := make(Frame, len(raw)/2)
	for i := range frame {
		frame[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / math.MaxInt16
	}
	return frame
}
