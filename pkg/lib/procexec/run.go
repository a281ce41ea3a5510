package procexec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"go.uber.org/zap"
)

// Result is the outcome of a one-shot command.
type Result struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"returncode"`
}

// Runner runs a command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger *zap.Logger
}

// Run starts name with args, waits for it and captures both output streams.
// A non-zero exit is reported through Result.ReturnCode, not as an error;
// an error is returned only when the command could not run at all.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Running command", zap.String("command", name), zap.Strings("args", args))
	err := cmd.Run()

	result := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ReturnCode = exitErr.ExitCode()
			logger.Debug("Command exited with non-zero status",
				zap.String("command", name),
				zap.Int("returncode", result.ReturnCode))
			return result, nil
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, lib.NewError(lib.KindNotFound, name+" executable not found", err)
		}
		return nil, err
	}

	return result, nil
}
