package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

const defaultDrainTimeout = 30 * time.Second

// Result is what a finished process left behind. A non-zero ExitCode is not
// an error at this layer.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs external executables. Stream hands each stdout line to
// onLine as it arrives; returning false from onLine stops delivery, the rest
// of stdout is discarded and the process is still waited for.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string) (*Result, error)
	Stream(ctx context.Context, name string, args []string, onLine func(line string) bool) (*Result, error)
}

// ExecRunner is the os/exec backed CommandRunner.
type ExecRunner struct {
	// DrainTimeout bounds how long a streaming process may take to exit once
	// its stdout has closed, and how long Wait lingers on inherited pipes.
	DrainTimeout time.Duration
}

func NewExecRunner(drainTimeout time.Duration) *ExecRunner {
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}
	return &ExecRunner{DrainTimeout: drainTimeout}
}

func (r *ExecRunner) drainTimeout() time.Duration {
	if r.DrainTimeout <= 0 {
		return defaultDrainTimeout
	}
	return r.DrainTimeout
}

// Run executes name and captures stdout and stderr in full.
func (r *ExecRunner) Run(ctx context.Context, name string, args []string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.drainTimeout()

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	res := &Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	return exitResult(ctx, name, res, err)
}

// Stream executes name, feeding stdout to onLine line by line while stderr is
// captured in full.
func (r *ExecRunner) Stream(ctx context.Context, name string, args []string, onLine func(line string) bool) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	grace := r.drainTimeout()
	cmd.WaitDelay = grace

	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe for %s: %v", ErrRunner, name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrRunner, name, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	listening := true
	for scanner.Scan() {
		if listening && !onLine(scanner.Text()) {
			listening = false
		}
	}
	readErr := scanner.Err()
	if readErr != nil {
		// keep the pipe empty so the process is never stuck writing to us
		_, _ = io.Copy(io.Discard, stdout)
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-timer.C:
		_ = cmd.Process.Kill()
		<-waitDone
		return &Result{Stderr: stderrBuf.String(), ExitCode: -1},
			fmt.Errorf("%w: %s: %w after %s", ErrRunner, name, ErrDrainTimeout, grace)
	}

	res := &Result{Stderr: stderrBuf.String()}
	if readErr != nil {
		res.ExitCode = exitCode(cmd)
		return res, fmt.Errorf("%w: reading stdout of %s: %v", ErrRunner, name, readErr)
	}
	return exitResult(ctx, name, res, waitErr)
}

// exitResult turns the error from Run/Wait into an exit code where possible.
func exitResult(ctx context.Context, name string, res *Result, err error) (*Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("%w: %s: %w", ErrRunner, name, ctxErr)
	}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	res.ExitCode = -1
	return res, fmt.Errorf("%w: %s: %v", ErrRunner, name, err)
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}
