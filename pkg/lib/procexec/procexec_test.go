package procexec

import (
	"context"
	"os/exec"
	"testing"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"
)

func TestClassifyKillError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind lib.Kind
	}{
		{name: "no such process", err: unix.ESRCH, kind: lib.KindNotRunning},
		{name: "permission denied", err: unix.EPERM, kind: lib.KindPermissionDenied},
		{name: "other errno", err: unix.EINVAL, kind: lib.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyKillError(42, tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.kind, lib.KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, classifyKillError(42, nil))
}

func TestSignalTerminatesChild(t *testing.T) {
	cmd := exec.Command("sleep", "10")
	cmd.SysProcAttr = SysProcAttr()
	require.NoError(t, cmd.Start())

	require.NoError(t, Terminate(cmd.Process.Pid))

	err := cmd.Wait()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)

	// The pid is reaped now, so a second signal finds nothing.
	assert.ErrorIs(t, Terminate(cmd.Process.Pid), lib.ErrNotRunning)
}

func TestExecRunner_CapturesOutputAndReturnCode(t *testing.T) {
	r := ExecRunner{Logger: zaptest.NewLogger(t)}

	res, err := r.Run(context.Background(), "sh", "-c", "echo out; echo err 1>&2; exit 3")

	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 3, res.ReturnCode)
}

func TestExecRunner_MissingExecutable(t *testing.T) {
	r := ExecRunner{}

	_, err := r.Run(context.Background(), "testbed-monitor-no-such-binary")

	assert.ErrorIs(t, err, lib.ErrNotFound)
}
