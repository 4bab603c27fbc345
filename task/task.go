package task

import (
	"time"
)

type Status string

const (
	StatusQueued      Status = "queued"
	StatusProbing     Status = "probing"
	StatusTranscoding Status = "transcoding"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Running reports whether a worker is actively executing the task.
func (s Status) Running() bool {
	return s == StatusProbing || s == StatusTranscoding
}

// canTransition encodes the lifecycle:
//
//	queued -> probing -> transcoding -> completed
//	probing | transcoding -> failed
//	any non-terminal -> cancelled
func canTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StatusProbing:
		return from == StatusQueued
	case StatusTranscoding:
		return from == StatusProbing
	case StatusCompleted:
		return from == StatusTranscoding
	case StatusFailed:
		return from.Running()
	case StatusCancelled:
		return true
	}
	return false
}

type FailureKind string

const (
	FailureProbe     FailureKind = "probe"
	FailureRunner    FailureKind = "runner"
	FailureTranscode FailureKind = "transcode"
	FailureInternal  FailureKind = "internal"
)

// Task is one source-file-to-audio conversion job. Values handed out by the
// Manager are snapshots; the authoritative copy never leaves it.
type Task struct {
	ID                   string      `json:"id"`
	InputPath            string      `json:"inputPath"`
	OutputPath           string      `json:"outputPath"`
	Format               string      `json:"format"`
	Status               Status      `json:"status"`
	Progress             int         `json:"progress"`
	TotalDurationSeconds float64     `json:"totalDurationSeconds"`
	Error                string      `json:"error,omitempty"`
	FailureKind          FailureKind `json:"failureKind,omitempty"`
	InputSize            int64       `json:"inputSize"`
	CreatedAt            time.Time   `json:"createdAt"`
	StartedAt            time.Time   `json:"startedAt,omitempty"`
	CompletedAt          time.Time   `json:"completedAt,omitempty"`
}
