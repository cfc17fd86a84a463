package output

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/loqalabs/loqa-converse/internal/audio"
	"github.com/mattn/go-shellwords"
)

// Player plays one audio file and returns once playback has finished.
type Player interface {
	Play(ctx context.Context, path string) error
}

// ExecPlayer plays files with an external command such as `aplay -q`; the
// file path is appended as the last argument.
type ExecPlayer struct {
	cmd  []string
	poll time.Duration
	log  *slog.Logger
}

func NewExecPlayer(command string, poll time.Duration, log *slog.Logger) (*ExecPlayer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse play command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("play command empty")
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &ExecPlayer{cmd: args, poll: poll, log: log.With(slog.String("component", "player"))}, nil
}

// Play starts the command and polls for completion at the configured
// interval.
func (p *ExecPlayer) Play(ctx context.Context, path string) error {
	attrs := []any{slog.String("path", path)}
	if info, err := audio.ReadInfo(path); err == nil {
		attrs = append(attrs, slog.Duration("duration", info.Duration))
	}
	p.log.Debug("playback starting", attrs...)

	args := append(append([]string{}, p.cmd[1:]...), path)
	cmd := exec.CommandContext(ctx, p.cmd[0], args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start playback: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("playback failed: %w", err)
			}
			return nil
		case <-ticker.C:
			p.log.Debug("playback in progress", slog.String("path", path))
		}
	}
}
