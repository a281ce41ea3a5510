// Package capture records traffic from a network interface into a pcap file
// by supervising an external capture tool (tshark).
package capture

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/procexec"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	DefaultDirectory = "tshark/captures"
	DefaultTool      = "tshark"
	DefaultInterface = "eth0"

	timestampLayout = "20060102_150405"
)

// Options configures a Manager.
type Options struct {
	Directory        string
	Tool             string
	DefaultInterface string
	// StopTimeout bounds the wait after SIGTERM before the tool is killed.
	StopTimeout time.Duration
	Now         func() time.Time
	Logger      *zap.Logger
}

// Status describes the current capture, if any.
type Status struct {
	Capturing bool   `json:"capturing"`
	Interface string `json:"interface,omitempty"`
	File      string `json:"file,omitempty"`
}

// Manager owns at most one capture session.
type Manager struct {
	mu      sync.Mutex
	options Options
	logger  *zap.Logger
	session *session
}

type session struct {
	iface string
	path  string
	cmd   *exec.Cmd
	done  chan struct{}
}

// NewManager creates an idle Manager.
func NewManager(options Options) *Manager {
	if options.Directory == "" {
		options.Directory = DefaultDirectory
	}
	if options.Tool == "" {
		options.Tool = DefaultTool
	}
	if options.DefaultInterface == "" {
		options.DefaultInterface = DefaultInterface
	}
	if options.StopTimeout <= 0 {
		options.StopTimeout = 10 * time.Second
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{options: options, logger: logger.Named("capture")}
}

// Start begins capturing iface and returns the destination file path without
// waiting for any packet to be written.
func (m *Manager) Start(iface string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		return "", lib.Errorf(lib.KindAlreadyRunning, "capture already running on %s", m.session.iface)
	}
	if iface == "" {
		iface = m.options.DefaultInterface
	}

	if err := os.MkdirAll(m.options.Directory, 0o755); err != nil {
		return "", fmt.Errorf("create capture directory: %w", err)
	}
	path := filepath.Join(m.options.Directory, captureFileName(iface, m.options.Now()))

	cmd := exec.Command(m.options.Tool, "-i", iface, "-w", path)
	cmd.SysProcAttr = procexec.SysProcAttr()
	if err := cmd.Start(); err != nil {
		m.logger.Warn("Failed to start capture tool", zap.String("tool", m.options.Tool), zap.Error(err))
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return "", lib.NewError(lib.KindNotFound, "capture tool not found: "+m.options.Tool, err)
		}
		return "", err
	}

	s := &session{iface: iface, path: path, cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		m.logger.Debug("Capture tool exited", zap.String("file", path), zap.Error(err))
		close(s.done)
	}()

	m.session = s
	m.logger.Info("Capture started",
		zap.String("interface", iface),
		zap.String("file", path),
		zap.Int("pid", cmd.Process.Pid))

	return path, nil
}

// Stop terminates the capture tool, waits for it to exit and returns the
// file it wrote. With no active session it returns lib.KindNotRunning and
// touches neither the filesystem nor any process.
func (m *Manager) Stop() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s == nil {
		return "", lib.Errorf(lib.KindNotRunning, "no capture running")
	}

	pid := s.cmd.Process.Pid
	select {
	case <-s.done:
		// Tool already exited on its own; the pid may be reused.
	default:
		if err := procexec.Terminate(pid); err != nil && !errors.Is(err, lib.ErrNotRunning) {
			return "", err
		}
	}

	select {
	case <-s.done:
	case <-time.After(m.options.StopTimeout):
		m.logger.Warn("Capture tool ignored SIGTERM, killing", zap.Int("pid", pid))
		_ = procexec.Signal(pid, unix.SIGKILL)
		<-s.done
	}

	m.session = nil
	m.logger.Info("Capture stopped", zap.String("file", s.path))

	return s.path, nil
}

// Status reports the active session without blocking on the tool.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return Status{}
	}
	return Status{Capturing: true, Interface: m.session.iface, File: m.session.path}
}

func captureFileName(iface string, now time.Time) string {
	safe := strings.ReplaceAll(iface, "/", "_")
	return fmt.Sprintf("capture_%s_%s.pcap", safe, now.Format(timestampLayout))
}
