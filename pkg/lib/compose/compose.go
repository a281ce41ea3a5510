// Package compose drives the 5G core network through docker compose.
package compose

import (
	"context"
	"fmt"

	"github.com/oai-testbed/testbed-monitor/pkg/lib/procexec"
	"go.uber.org/zap"
)

const (
	DefaultBinary      = "docker"
	DefaultComposeFile = "/home/user/oai-cn5g/docker-compose.yaml"
)

// Options configures a Manager.
type Options struct {
	Binary      string
	ComposeFile string
	Runner      procexec.Runner
	Logger      *zap.Logger
}

// Result is returned to clients for every compose action.
type Result struct {
	Message string `json:"message"`
	procexec.Result
}

// Manager runs docker compose against one compose file.
type Manager struct {
	options Options
	logger  *zap.Logger
}

func NewManager(options Options) *Manager {
	if options.Binary == "" {
		options.Binary = DefaultBinary
	}
	if options.ComposeFile == "" {
		options.ComposeFile = DefaultComposeFile
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.Runner == nil {
		options.Runner = procexec.ExecRunner{Logger: logger}
	}
	return &Manager{options: options, logger: logger.Named("compose")}
}

// Up starts the core services detached. A non-zero return code is reported
// in the result, not as an error.
func (m *Manager) Up(ctx context.Context) (*Result, error) {
	return m.run(ctx, "start", "Core network started", "up", "-d")
}

// Down stops and removes the core services.
func (m *Manager) Down(ctx context.Context) (*Result, error) {
	return m.run(ctx, "stop", "Core network stopped", "down")
}

// Restart restarts the core services; unlike Up and Down a non-zero return
// code is an error.
func (m *Manager) Restart(ctx context.Context) (*Result, error) {
	res, err := m.run(ctx, "restart", "Core network restarted successfully", "restart")
	if err != nil {
		return nil, err
	}
	if res.ReturnCode != 0 {
		return res, fmt.Errorf("failed to restart the core network: %s", res.Stderr)
	}
	return res, nil
}

func (m *Manager) run(ctx context.Context, verb, message string, action ...string) (*Result, error) {
	args := append([]string{"compose", "-f", m.options.ComposeFile}, action...)

	out, err := m.options.Runner.Run(ctx, m.options.Binary, args...)
	if err != nil {
		m.logger.Warn("Compose command failed", zap.Strings("action", action), zap.Error(err))
		return nil, fmt.Errorf("failed to %s the core network: %w", verb, err)
	}

	m.logger.Info("Compose command finished",
		zap.Strings("action", action),
		zap.Int("returncode", out.ReturnCode))

	return &Result{Message: message, Result: *out}, nil
}
