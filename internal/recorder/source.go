package recorder

import (
	"context"
	"errors"
)

// Frame is a block of normalized mono samples in [-1, 1].
type Frame []float32

// Source abstracts a capture device.
//
// Start begins delivering frames on the given channel from a background
// goroutine and returns once capture is running. Stop ends capture and
// reports any error the device hit while running; once it returns no more
// frames are sent. The source never closes the frames channel.
type Source interface {
	Start(ctx context.Context, frames chan<- Frame) error
	Stop() error
}

// Trigger blocks until the user asks to start or stop a recording.
type Trigger interface {
	Wait(ctx context.Context) error
}

var (
	// ErrCapture marks a capture-device failure. The turn is lost but the
	// conversation can continue.
	ErrCapture = errors.New("capture device error")
	// ErrEmptyRecording is returned when no audio was captured.
	ErrEmptyRecording = errors.New("recording is empty")
)
