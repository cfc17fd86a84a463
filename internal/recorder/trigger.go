package recorder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// LineTrigger fires each time a line (Enter) is read from the reader.
type LineTrigger struct {
	reader *bufio.Reader
	lines  chan error
	once   sync.Once
}

func NewLineTrigger(r io.Reader) *LineTrigger {
	return &LineTrigger{
		reader: bufio.NewReader(r),
		lines:  make(chan error),
	}
}

// Wait blocks until a line is read or ctx is done. Reaching the end of the
// input is reported as an error since no further signal can ever arrive.
func (t *LineTrigger) Wait(ctx context.Context) error {
	t.once.Do(func() { go t.readLoop() })
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-t.lines:
		return err
	}
}

// readLoop lives as long as the process: reads on stdin cannot be
// interrupted, so one goroutine hands lines to whoever is waiting.
func (t *LineTrigger) readLoop() {
	for {
		if _, err := t.reader.ReadString('\n'); err != nil {
			if err == io.EOF {
				err = fmt.Errorf("trigger input closed: %w", err)
			}
			for {
				t.lines <- err
			}
		}
		t.lines <- nil
	}
}
