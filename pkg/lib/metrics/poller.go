// Package metrics polls a time-series store and pushes each new point of one
// subject's metric to a single subscriber, in strictly increasing time order.
package metrics

import (
	"context"
	"time"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultLookback     = 10 * time.Second
)

// Options configures a Poller.
type Options struct {
	Querier      Querier
	PollInterval time.Duration
	// Lookback bounds the first query of a session; later queries only ask
	// for points newer than the last one delivered.
	Lookback time.Duration
	Now      func() time.Time
	Logger   *zap.Logger
}

// Poller runs metric sessions. Sessions share nothing but the Querier.
type Poller struct {
	options Options
	logger  *zap.Logger
}

func NewPoller(options Options) *Poller {
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if options.Lookback <= 0 {
		options.Lookback = DefaultLookback
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{options: options, logger: logger.Named("metrics")}
}

// watermark is the timestamp of the last point delivered in a session.
type watermark struct {
	at  time.Time
	set bool
}

func (w *watermark) filter(subjectID, metric string, now time.Time, lookback time.Duration) Filter {
	f := Filter{SubjectID: subjectID, Metric: metric}
	if w.set {
		f.After = w.at
	} else {
		f.Start = now.Add(-lookback)
	}
	return f
}

// advance moves the watermark to t and reports whether t is new.
func (w *watermark) advance(t time.Time) bool {
	if w.set && !t.After(w.at) {
		return false
	}
	w.at, w.set = t, true
	return true
}

// Run polls until ctx is cancelled, a query fails or sending fails, then
// closes sender exactly once.
func (p *Poller) Run(ctx context.Context, subjectID, metric string, sender lib.Sender) error {
	logger := p.logger.With(
		zap.String("session", lib.NewID()),
		zap.String("ue_id", subjectID),
		zap.String("metric", metric))
	logger.Info("Metric stream opened")

	code, reason, err := p.loop(ctx, subjectID, metric, sender, logger)

	if closeErr := sender.Close(code, reason); closeErr != nil {
		logger.Debug("Failed to close transport", zap.Error(closeErr))
	}
	logger.Info("Metric stream closed", zap.Stringer("code", code), zap.String("reason", reason), zap.Error(err))

	return err
}

func (p *Poller) loop(ctx context.Context, subjectID, metric string, sender lib.Sender, logger *zap.Logger) (lib.CloseCode, string, error) {
	var mark watermark
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return lib.CloseNormal, "subscriber gone", nil
		case <-timer.C:
		}

		filter := mark.filter(subjectID, metric, p.options.Now(), p.options.Lookback)
		tables, err := p.options.Querier.Query(ctx, filter)
		if err != nil {
			if ctx.Err() != nil {
				return lib.CloseNormal, "subscriber gone", nil
			}
			qerr := lib.NewError(lib.KindQuery, "metrics query failed", err)
			logger.Warn("Query failed", zap.Error(err))
			if sendErr := sender.Send(ctx, lib.ErrorPayload{Error: qerr.Error()}); sendErr != nil {
				logger.Debug("Failed to deliver query error", zap.Error(sendErr))
			}
			return lib.CloseAbnormal, "query failed", qerr
		}

		if point, ok := latest(tables); ok && mark.advance(point.Time) {
			if err := sender.Send(ctx, messageFrom(point)); err != nil {
				if ctx.Err() != nil {
					return lib.CloseNormal, "subscriber gone", nil
				}
				return lib.CloseAbnormal, "send failed", lib.NewError(lib.KindTransport, "send metric", err)
			}
		}

		timer.Reset(p.options.PollInterval)
	}
}
