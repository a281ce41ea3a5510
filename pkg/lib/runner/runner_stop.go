package runner

import (
	"errors"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"go.uber.org/zap"
)

// Stop sends SIGTERM to the managed process, clears the handle and returns
// the terminated pid. It does not wait for the process to exit.
//
// With no handle it returns lib.KindNotRunning. If the process is already
// gone the handle is cleared and lib.KindNotRunning is still returned. A
// refused signal returns lib.KindPermissionDenied and keeps the handle.
func (s *Supervisor) Stop() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pe := s.current
	if pe == nil {
		return 0, lib.Errorf(lib.KindNotRunning, "process not running")
	}

	logger := s.logger.With(zap.Int("pid", pe.pid))

	if pe.exited() {
		s.current = nil
		logger.Info("Process already exited, handle cleared")
		return 0, lib.Errorf(lib.KindNotRunning, "process does not exist")
	}

	if err := s.terminate(pe.pid); err != nil {
		if errors.Is(err, lib.ErrNotRunning) {
			s.current = nil
			logger.Info("Process vanished before signal, handle cleared")
		} else {
			logger.Warn("Failed to signal process", zap.Error(err))
		}
		return 0, err
	}

	s.current = nil
	logger.Info("Sent SIGTERM to process")

	return pe.pid, nil
}

func (processEntry *processEntry) exited() bool {
	select {
	case <-processEntry.done:
		return true
	default:
		return false
	}
}
