// Package runner supervises a single long-running external process, such as
// the gNodeB soft modem, and exposes its merged stdout/stderr as a line queue.
package runner

import (
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/handoff"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/procexec"
	"go.uber.org/zap"
)

// ConfigPlaceholder is replaced by the configuration path in Options.Args.
const ConfigPlaceholder = "{config}"

// DefaultArgs launches an OAI gNB in RF-simulator friendly mode.
var DefaultArgs = []string{
	"-O", ConfigPlaceholder,
	"--gNBs.[0].min_rxtxtime", "6",
	"-E",
	"--continuous-tx",
}

// Options configures a Supervisor.
type Options struct {
	ExecutablePath string
	ConfigPath     string
	// Args is the fixed argument template; nil means DefaultArgs.
	Args   []string
	Logger *zap.Logger
}

// Supervisor owns at most one managed process.
//
// The slot is guarded by mu and every check-then-act on it (Start, Stop)
// happens under a single lock acquisition.
type Supervisor struct {
	mu      sync.Mutex
	options Options
	logger  *zap.Logger
	current *processEntry

	terminate func(pid int) error
}

type processEntry struct {
	command lib.Command
	cmd     *exec.Cmd
	pid     int
	output  *handoff.Queue[string]
	// done is closed once the process has exited and been reaped.
	done    chan struct{}

	// following is set while a consumer holds output; guarded by Supervisor.mu.
	following bool

	// status fields
	mu       sync.RWMutex
	exitCode *int
	start    time.Time
	end      *time.Time
}

// New creates a Supervisor in the Stopped state.
func New(options Options) *Supervisor {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.Args == nil {
		options.Args = DefaultArgs
	}

	return &Supervisor{
		options:   options,
		logger:    logger.Named("supervisor"),
		terminate: procexec.Terminate,
	}
}

// Command returns the command line the supervisor launches.
func (s *Supervisor) Command() lib.Command {
	return lib.Command{Command: s.options.ExecutablePath, Args: s.args()}
}

func (s *Supervisor) args() []string {
	args := make([]string, len(s.options.Args))
	for i, a := range s.options.Args {
		args[i] = strings.ReplaceAll(a, ConfigPlaceholder, s.options.ConfigPath)
	}
	return args
}
