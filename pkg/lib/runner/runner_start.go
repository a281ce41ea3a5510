package runner

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/handoff"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/procexec"
	"go.uber.org/zap"
)

// Start launches the managed process. It fails with lib.KindAlreadyRunning if
// a process handle exists and with lib.KindNotFound if the configuration file
// or the executable is missing.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return lib.Errorf(lib.KindAlreadyRunning, "process already running (pid %d)", s.current.pid)
	}
	if !isRegularFile(s.options.ConfigPath) {
		return lib.Errorf(lib.KindNotFound, "configuration file not found: %s", s.options.ConfigPath)
	}
	if !isRegularFile(s.options.ExecutablePath) {
		return lib.Errorf(lib.KindNotFound, "executable not found: %s", s.options.ExecutablePath)
	}

	command := s.Command()

	// stdout and stderr share one pipe so lines keep their relative order.
	// The parent keeps only the read end; Wait never touches it.
	pr, pw, err := os.Pipe()
	if err != nil {
		return err
	}

	cmd := exec.Command(command.Command, command.Args...)
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.SysProcAttr = procexec.SysProcAttr()

	s.logger.Info("Starting process",
		zap.String("executable", command.Command),
		zap.Strings("args", command.Args))
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		s.logger.Warn("Failed to start process", zap.Error(err))
		if errors.Is(err, os.ErrPermission) {
			return lib.NewError(lib.KindPermissionDenied, "cannot execute "+command.Command, err)
		}
		return err
	}
	_ = pw.Close()

	entry := &processEntry{
		command: command,
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		output:  handoff.New[string](),
		done:    make(chan struct{}),
		start:   time.Now(),
	}

	logger := s.logger.With(zap.Int("pid", entry.pid))
	go entry.forward(pr, logger)
	go entry.wait(logger)

	s.current = entry
	logger.Info("Process started")

	return nil
}

// forward performs blocking line reads on the process output and pushes each
// line onto the output queue. End of stream closes the queue; it is not an error.
func (processEntry *processEntry) forward(r io.ReadCloser, logger *zap.Logger) {
	defer func() {
		_ = r.Close()
		processEntry.output.Close()
	}()

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			processEntry.output.Push(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				logger.Debug("Output read ended", zap.Error(err))
			}
			return
		}
	}
}

// wait reaps the process and records its exit status.
func (processEntry *processEntry) wait(logger *zap.Logger) {
	err := processEntry.cmd.Wait()

	processEntry.mu.Lock()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			processEntry.exitCode = &code
		}
	} else {
		code := 0
		processEntry.exitCode = &code
	}
	now := time.Now()
	processEntry.end = &now
	processEntry.mu.Unlock()

	close(processEntry.done)

	if err != nil {
		logger.Info("Process exited", zap.Error(err))
	} else {
		logger.Info("Process exited cleanly")
	}
}

func isRegularFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
