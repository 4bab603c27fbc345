package ffmpeg

import "errors"

var (
	// ErrRunner marks failures of the process plumbing itself: spawn, pipe
	// reads, context cancellation or a missed exit deadline.
	ErrRunner = errors.New("command runner error")

	// ErrDrainTimeout is wrapped together with ErrRunner when a process keeps
	// running past the grace period after closing its stdout.
	ErrDrainTimeout = errors.New("process did not exit after stdout closed")

	// ErrProbeFailed marks a duration probe that could not produce a value.
	ErrProbeFailed = errors.New("probe failed")

	// ErrInsufficientResources is returned by ResourceGuard.Check.
	ErrInsufficientResources = errors.New("insufficient system resources")
)
