// Package output persists synthesized speech and plays it back.
package output

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/loqalabs/loqa-converse/internal/audio"
	"github.com/loqalabs/loqa-converse/internal/tts"
)

// Manager owns the scratch directory that holds one turn's reply audio.
type Manager struct {
	dir    string
	player Player
	log    *slog.Logger
}

func NewManager(dir string, player Player, log *slog.Logger) *Manager {
	return &Manager{dir: dir, player: player, log: log.With(slog.String("component", "output"))}
}

// Reset empties the scratch directory, creating it when absent.
func (m *Manager) Reset() error {
	if err := ClearDirectory(m.dir); err != nil {
		return err
	}
	m.log.Debug("output directory cleared", slog.String("dir", m.dir))
	return nil
}

// FileName is the name of the index-th reply file.
func FileName(index int) string {
	return fmt.Sprintf("sft_%d.wav", index)
}

// Persist writes each chunk, in arrival order, to sft_{i}.wav. It consumes
// both channels until they close so the synthesizer is never left blocked;
// the first write or synthesis error is returned afterwards.
func (m *Manager) Persist(ctx context.Context, chunks <-chan tts.SynthChunk, errs <-chan error) ([]string, error) {
	var (
		files    []string
		writeErr error
		synthErr error
	)
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if writeErr != nil {
				continue
			}
			path := filepath.Join(m.dir, FileName(len(files)))
			if err := audio.WritePCM16WAV(path, chunk.PCM, chunk.SampleRate, chunk.Channels); err != nil {
				writeErr = fmt.Errorf("persist %s: %w", path, err)
				continue
			}
			files = append(files, path)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && synthErr == nil {
				synthErr = err
			}
		case <-ctx.Done():
			return files, ctx.Err()
		}
	}
	if writeErr != nil {
		return files, writeErr
	}
	if synthErr != nil {
		return files, fmt.Errorf("synthesis failed: %w", synthErr)
	}
	m.log.Info("reply audio written", slog.Int("files", len(files)), slog.String("dir", m.dir))
	return files, nil
}

// PlayAll plays files in order. A failed file is logged and skipped. It
// returns the number of files that played successfully.
func (m *Manager) PlayAll(ctx context.Context, files []string) int {
	played := 0
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		if err := m.player.Play(ctx, path); err != nil {
			m.log.Warn("playback failed", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		played++
	}
	return played
}

// PersistAndPlay writes every chunk and then plays the files in index
// order.
func (m *Manager) PersistAndPlay(ctx context.Context, chunks <-chan tts.SynthChunk, errs <-chan error) ([]string, error) {
	files, err := m.Persist(ctx, chunks, errs)
	if err != nil {
		return files, err
	}
	m.PlayAll(ctx, files)
	return files, nil
}
