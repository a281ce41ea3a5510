package runner

import (
	"context"
	"errors"
	"time"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/handoff"
	"go.uber.org/zap"
)

const DefaultFollowTimeout = time.Second

// Follow sends output lines of the current process to sender until the
// output ends, the process is no longer running, ctx is cancelled or sending
// fails. It closes sender exactly once. Only one Follow may hold the output
// at a time; a second one gets lib.KindAlreadyRunning.
func (s *Supervisor) Follow(ctx context.Context, sender lib.Sender, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultFollowTimeout
	}

	q, release, err := s.Output()
	if err != nil {
		_ = sender.Close(lib.CloseAbnormal, lib.DetailOf(err))
		return err
	}
	defer release()

	logger := s.logger.With(zap.String("session", lib.NewID()))
	logger.Debug("Log follower attached")

	code, reason, err := s.follow(ctx, q, sender, timeout)
	if closeErr := sender.Close(code, reason); closeErr != nil {
		logger.Debug("Failed to close transport", zap.Error(closeErr))
	}
	logger.Debug("Log follower detached", zap.String("reason", reason), zap.Error(err))

	return err
}

func (s *Supervisor) follow(ctx context.Context, q *handoff.Queue[string], sender lib.Sender, timeout time.Duration) (lib.CloseCode, string, error) {
	for {
		line, err := q.Pop(ctx, timeout)
		switch {
		case err == nil:
		case errors.Is(err, handoff.ErrTimeout):
			// Quiet output: a stopped process whose pipe is held open by a
			// descendant would otherwise keep us here forever.
			if !s.IsRunning() {
				return lib.CloseNormal, "process not running", nil
			}
			continue
		case errors.Is(err, handoff.ErrClosed):
			return lib.CloseNormal, "process exited", nil
		default:
			return lib.CloseNormal, "subscriber gone", nil
		}

		if err := sender.Send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return lib.CloseNormal, "subscriber gone", nil
			}
			return lib.CloseAbnormal, "send failed", lib.NewError(lib.KindTransport, "send log line", err)
		}
	}
}
