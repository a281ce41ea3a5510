package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const fakeTool = `#!/bin/sh
exec sleep 30
`

type fakeClock struct {
	times []time.Time
}

func (c *fakeClock) Now() time.Time {
	now := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return now
}

func newTestManager(t *testing.T, clock *fakeClock) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()

	tool := filepath.Join(dir, "fake-tshark")
	require.NoError(t, os.WriteFile(tool, []byte(fakeTool), 0o755))

	captures := filepath.Join(dir, "captures")
	m := NewManager(Options{
		Directory:   captures,
		Tool:        tool,
		StopTimeout: 2 * time.Second,
		Now:         clock.Now,
		Logger:      zaptest.NewLogger(t),
	})
	t.Cleanup(func() { _, _ = m.Stop() })

	return m, captures
}

func TestStartReturnsTimestampedPath(t *testing.T) {
	clock := &fakeClock{times: []time.Time{time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}}
	m, captures := newTestManager(t, clock)

	path, err := m.Start("eth1")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(captures, "capture_eth1_20250102_030405.pcap"), path)
	assert.DirExists(t, captures)
	assert.Equal(t, Status{Capturing: true, Interface: "eth1", File: path}, m.Status())
}

func TestStartDefaultsInterface(t *testing.T) {
	clock := &fakeClock{times: []time.Time{time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}}
	m, _ := newTestManager(t, clock)

	path, err := m.Start("")

	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "capture_eth0_")
}

func TestStartTwiceFails(t *testing.T) {
	clock := &fakeClock{times: []time.Time{time.Now()}}
	m, _ := newTestManager(t, clock)

	_, err := m.Start("eth0")
	require.NoError(t, err)

	_, err = m.Start("eth0")
	assert.ErrorIs(t, err, lib.ErrAlreadyRunning)
}

func TestStopReturnsPathAndResets(t *testing.T) {
	clock := &fakeClock{times: []time.Time{time.Now()}}
	m, _ := newTestManager(t, clock)

	started, err := m.Start("eth0")
	require.NoError(t, err)

	stopped, err := m.Stop()
	require.NoError(t, err)
	assert.Equal(t, started, stopped)
	assert.Equal(t, Status{}, m.Status())

	_, err = m.Stop()
	assert.ErrorIs(t, err, lib.ErrNotRunning)
}

func TestStopWhenIdleTouchesNothing(t *testing.T) {
	clock := &fakeClock{times: []time.Time{time.Now()}}
	m, captures := newTestManager(t, clock)

	_, err := m.Stop()

	assert.ErrorIs(t, err, lib.ErrNotRunning)
	assert.NoDirExists(t, captures)
}

func TestSessionsAtDifferentSecondsGetDistinctPaths(t *testing.T) {
	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{times: []time.Time{first, first.Add(time.Second)}}
	m, _ := newTestManager(t, clock)

	p1, err := m.Start("eth0")
	require.NoError(t, err)
	_, err = m.Stop()
	require.NoError(t, err)

	p2, err := m.Start("eth0")
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
}

func TestStartWithMissingTool(t *testing.T) {
	m := NewManager(Options{
		Directory: t.TempDir(),
		Tool:      filepath.Join(t.TempDir(), "no-tshark"),
		Logger:    zaptest.NewLogger(t),
	})

	_, err := m.Start("eth0")

	assert.ErrorIs(t, err, lib.ErrNotFound)
	assert.False(t, m.Status().Capturing)
}

func TestCaptureFileNameSanitizesInterface(t *testing.T) {
	name := captureFileName("veth/0", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, "capture_veth_0_20250101_000000.pcap", name)
}
