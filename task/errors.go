package task

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a submitted path that is missing, not a regular
	// file or over the size limit. Such paths are skipped, never failed.
	ErrInvalidInput = errors.New("invalid input file")

	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidFormat marks an output format that is not a plain
	// alphanumeric extension such as "mp3" or ".flac".
	ErrInvalidFormat = errors.New("invalid output format")
)

// StateError is returned when an operation is not allowed in the task's
// current state.
type StateError struct {
	ID     string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot cancel task in state: %s", e.Status)
}

// TranscodeError is a transcode that ran to completion with a non-zero exit.
// Its message is the captured diagnostic text, unchanged.
type TranscodeError struct {
	ExitCode int
	Stderr   string
}

func (e *TranscodeError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("ffmpeg exited with code %d", e.ExitCode)
}
