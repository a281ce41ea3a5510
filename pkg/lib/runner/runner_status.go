package runner

import (
	"github.com/oai-testbed/testbed-monitor/pkg/lib"
)

// IsRunning reports whether a handle exists and the process has not exited.
// It never blocks on the process.
func (s *Supervisor) IsRunning() bool {
	pe := s.entry()
	return pe != nil && !pe.exited()
}

// Status returns a snapshot of the managed process.
func (s *Supervisor) Status() lib.ProcessStatus {
	pe := s.entry()
	if pe == nil {
		return lib.ProcessStatus{State: lib.ProcessStateStopped}
	}
	return pe.lockAndGetStatus()
}

func (s *Supervisor) entry() *processEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (processEntry *processEntry) lockAndGetStatus() lib.ProcessStatus {
	processEntry.mu.RLock()
	defer processEntry.mu.RUnlock()

	st := lib.ProcessStatus{
		State:     lib.ProcessStateRunning,
		Pid:       processEntry.pid,
		StartTime: processEntry.start,
	}
	if processEntry.end != nil {
		st.State = lib.ProcessStateStopped
		t := *processEntry.end
		st.EndTime = &t
	}
	if processEntry.exitCode != nil {
		st.ExitCode = new(int)
		*st.ExitCode = *processEntry.exitCode
	}
	return st
}
