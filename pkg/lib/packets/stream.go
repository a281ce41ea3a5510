// Package packets streams live capture records to a single subscriber.
//
// Capture runs on a worker goroutine that pushes records onto a hand-off
// queue; the subscriber side pops with a short poll interval so it keeps
// noticing cancellation while the interface is quiet.
package packets

import (
	"context"
	"errors"
	"time"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/handoff"
	"go.uber.org/zap"
)

const DefaultPollInterval = 100 * time.Millisecond

// Options configures a Stream.
type Options struct {
	Source       Source
	PollInterval time.Duration
	// ContinueOnRecordError keeps the stream open after forwarding a
	// per-packet error record. Capture start failures always end it.
	ContinueOnRecordError bool
	Logger                *zap.Logger
}

// Stream runs packet sessions. It holds no per-session state and may serve
// any number of concurrent sessions.
type Stream struct {
	options Options
	logger  *zap.Logger
}

func NewStream(options Options) *Stream {
	if options.Source == nil {
		options.Source = TsharkSource{Logger: options.Logger}
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{options: options, logger: logger.Named("packets")}
}

// Run captures iface with the optional BPF filter and forwards records to
// sender until the capture ends, ctx is cancelled, sending fails, or an
// error record ends the session. The sender is closed exactly once before
// Run returns.
func (s *Stream) Run(ctx context.Context, iface, filter string, sender lib.Sender) error {
	logger := s.logger.With(
		zap.String("session", lib.NewID()),
		zap.String("interface", iface),
		zap.String("filter", filter))
	logger.Info("Packet stream opened")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := handoff.New[Record]()
	go s.capture(ctx, queue, iface, filter, logger)

	code, reason, err := s.forward(ctx, queue, sender, logger)

	// Unblocks the worker: further pushes are refused and tshark is killed.
	queue.Close()
	cancel()

	if closeErr := sender.Close(code, reason); closeErr != nil {
		logger.Debug("Failed to close transport", zap.Error(closeErr))
	}
	logger.Info("Packet stream closed", zap.Stringer("code", code), zap.String("reason", reason), zap.Error(err))

	return err
}

func (s *Stream) capture(ctx context.Context, queue *handoff.Queue[Record], iface, filter string, logger *zap.Logger) {
	defer queue.Close()

	err := s.options.Source.Capture(ctx, iface, filter, queue.Push)
	if err != nil && ctx.Err() == nil {
		logger.Warn("Capture failed", zap.Error(err))
		queue.Push(fatalRecord(err))
	}
}

func (s *Stream) forward(ctx context.Context, queue *handoff.Queue[Record], sender lib.Sender, logger *zap.Logger) (lib.CloseCode, string, error) {
	for {
		rec, err := queue.Pop(ctx, s.options.PollInterval)
		switch {
		case err == nil:
		case errors.Is(err, handoff.ErrTimeout):
			continue
		case errors.Is(err, handoff.ErrClosed):
			return lib.CloseNormal, "capture ended", nil
		default:
			return lib.CloseNormal, "subscriber gone", nil
		}

		if err := sender.Send(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return lib.CloseNormal, "subscriber gone", nil
			}
			return lib.CloseAbnormal, "send failed", lib.NewError(lib.KindTransport, "send packet record", err)
		}

		if !rec.IsError() {
			continue
		}
		if rec.cause != nil {
			return lib.CloseAbnormal, rec.Error, rec.cause
		}
		if s.options.ContinueOnRecordError {
			logger.Debug("Skipping undecodable packet", zap.String("error", rec.Error))
			continue
		}
		return lib.CloseAbnormal, rec.Error, lib.NewError(lib.KindTransientParse, rec.Error, nil)
	}
}
