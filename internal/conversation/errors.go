package conversation

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTranscript = errors.New("nothing was recognized")
	ErrEmptyReply      = errors.New("model returned an empty reply")
)

// StageError ties a failure to the stage it happened in. Recoverable errors
// cost the current turn only; anything else stops the loop.
type StageError struct {
	Stage       State
	Err         error
	Recoverable bool
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func recoverable(stage State, err error) error {
	return &StageError{Stage: stage, Err: err, Recoverable: true}
}

func fatal(stage State, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// IsRecoverable reports whether err only invalidates the current turn.
func IsRecoverable(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Recoverable
}
