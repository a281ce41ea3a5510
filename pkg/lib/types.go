package lib

import (
	"context"
	"time"
)

// ProcessState mirrors the lifecycle of a managed process.
type ProcessState int

const (
	ProcessStateUnspecified ProcessState = iota
	ProcessStateRunning
	ProcessStateStopped
)

func (s ProcessState) String() string {
	switch s {
	case ProcessStateRunning:
		return "running"
	case ProcessStateStopped:
		return "stopped"
	default:
		return "unspecified"
	}
}

// Command captures command metadata used to start a process.
type Command struct {
	Command string
	Args    []string
}

// ProcessStatus captures runtime state and timestamps.
type ProcessStatus struct {
	State     ProcessState
	Pid       int
	ExitCode  *int
	StartTime time.Time
	EndTime   *time.Time
}

// CloseCode tells the transport why a stream ended.
type CloseCode int

const (
	// CloseNormal ends a stream after end-of-data or a subscriber disconnect.
	CloseNormal CloseCode = iota
	// CloseAbnormal ends a stream after a capture, query or transport failure.
	CloseAbnormal
)

func (c CloseCode) String() string {
	if c == CloseAbnormal {
		return "abnormal"
	}
	return "normal"
}

// Sender is the transport side of a single-subscriber stream.
//
// Close must be idempotent: closing an already-closed transport is a no-op.
type Sender interface {
	Send(ctx context.Context, v any) error
	Close(code CloseCode, reason string) error
}

// ErrorPayload is the terminal message delivered when a stream fails.
type ErrorPayload struct {
	Error string `json:"error"`
}
