package runner

import (
	"sync"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/handoff"
)

// Output claims the line queue of the current process for one consumer and
// returns it with a release func. The queue is closed once the process output
// reaches end of stream, so a consumer that still holds it after Stop drains
// the remaining lines and then sees handoff.ErrClosed.
//
// While a claim is held, further calls return lib.KindAlreadyRunning. Release
// is idempotent and hands the queue to the next consumer.
func (s *Supervisor) Output() (*handoff.Queue[string], func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pe := s.current
	if pe == nil {
		return nil, nil, lib.Errorf(lib.KindNotRunning, "process not running")
	}
	if pe.following {
		return nil, nil, lib.Errorf(lib.KindAlreadyRunning, "process output already has a consumer")
	}
	pe.following = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			pe.following = false
			s.mu.Unlock()
		})
	}
	return pe.output, release, nil
}

// Following reports whether the current process output has a consumer.
func (s *Supervisor) Following() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.following
}
