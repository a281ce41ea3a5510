package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var base = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return base.Add(time.Duration(sec) * time.Second)
}

// scriptedQuerier answers each call with the next entry; after the script is
// exhausted it calls onExhausted and returns nothing.
type scriptedQuerier struct {
	mu          sync.Mutex
	responses   [][]Table
	errs        []error
	filters     []Filter
	onExhausted func()
}

func (q *scriptedQuerier) Query(_ context.Context, f Filter) ([]Table, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := len(q.filters)
	q.filters = append(q.filters, f)
	if i < len(q.errs) && q.errs[i] != nil {
		return nil, q.errs[i]
	}
	if i < len(q.responses) {
		return q.responses[i], nil
	}
	if q.onExhausted != nil {
		q.onExhausted()
	}
	return nil, nil
}

func (q *scriptedQuerier) calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.filters)
}

func single(sec int, value float64) []Table {
	return []Table{{Points: []Point{{SubjectID: "UE_001", Metric: "cpu", Value: value, Time: at(sec)}}}}
}

type recordingSender struct {
	mu     sync.Mutex
	fail   bool
	sent   []any
	closes []lib.CloseCode
}

func (s *recordingSender) Send(_ context.Context, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broken pipe")
	}
	s.sent = append(s.sent, v)
	return nil
}

func (s *recordingSender) Close(code lib.CloseCode, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes = append(s.closes, code)
	return nil
}

func newTestPoller(t *testing.T, q Querier) *Poller {
	return NewPoller(Options{
		Querier:      q,
		PollInterval: 5 * time.Millisecond,
		Now:          func() time.Time { return at(100) },
		Logger:       zaptest.NewLogger(t),
	})
}

func TestRunDeliversOnlyNewerPoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := &scriptedQuerier{
		responses:   [][]Table{single(1, 10), single(3, 30), single(2, 20)},
		onExhausted: cancel,
	}
	sender := &recordingSender{}

	err := newTestPoller(t, q).Run(ctx, "UE_001", "cpu", sender)

	require.NoError(t, err)
	require.Len(t, sender.sent, 2)
	assert.Equal(t, Message{UEID: "UE_001", Metric: "cpu", Value: 10, Timestamp: at(1)}, sender.sent[0])
	assert.Equal(t, Message{UEID: "UE_001", Metric: "cpu", Value: 30, Timestamp: at(3)}, sender.sent[1])
	assert.Equal(t, []lib.CloseCode{lib.CloseNormal}, sender.closes)

	require.GreaterOrEqual(t, len(q.filters), 3)
	assert.Equal(t, at(90), q.filters[0].Start, "first query uses the lookback window")
	assert.True(t, q.filters[0].After.IsZero())
	assert.Equal(t, at(1), q.filters[1].After)
	assert.Equal(t, at(3), q.filters[2].After)
}

func TestRunPicksMostRecentAcrossTables(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := &scriptedQuerier{
		responses: [][]Table{{
			{Points: []Point{{Value: 1, Time: at(4)}, {Value: 2, Time: at(7)}}},
			{Points: []Point{{Value: 3, Time: at(5)}}},
		}},
		onExhausted: cancel,
	}
	sender := &recordingSender{}

	require.NoError(t, newTestPoller(t, q).Run(ctx, "UE_001", "cpu", sender))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, float64(2), sender.sent[0].(Message).Value)
}

func TestRunEmptyResultsSendNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := &scriptedQuerier{responses: [][]Table{nil, {}}, onExhausted: cancel}
	sender := &recordingSender{}

	require.NoError(t, newTestPoller(t, q).Run(ctx, "UE_001", "cpu", sender))

	assert.Empty(t, sender.sent)
	assert.Equal(t, []lib.CloseCode{lib.CloseNormal}, sender.closes)
}

func TestRunQueryFailure(t *testing.T) {
	q := &scriptedQuerier{
		responses: [][]Table{single(1, 10)},
		errs:      []error{nil, errors.New("influx unavailable")},
	}
	sender := &recordingSender{}

	err := newTestPoller(t, q).Run(context.Background(), "UE_001", "cpu", sender)

	assert.ErrorIs(t, err, lib.ErrQuery)
	require.Len(t, sender.sent, 2)
	payload, ok := sender.sent[1].(lib.ErrorPayload)
	require.True(t, ok)
	assert.Contains(t, payload.Error, "influx unavailable")
	assert.Equal(t, []lib.CloseCode{lib.CloseAbnormal}, sender.closes)
	assert.Equal(t, 2, q.calls())
}

func TestRunSendFailure(t *testing.T) {
	q := &scriptedQuerier{responses: [][]Table{single(1, 10), single(2, 20)}}
	sender := &recordingSender{fail: true}

	err := newTestPoller(t, q).Run(context.Background(), "UE_001", "cpu", sender)

	assert.ErrorIs(t, err, lib.ErrTransport)
	assert.Equal(t, []lib.CloseCode{lib.CloseAbnormal}, sender.closes)
	assert.Equal(t, 1, q.calls())
}

func TestRunStopsQueryingAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := &scriptedQuerier{onExhausted: cancel}
	sender := &recordingSender{}

	require.NoError(t, newTestPoller(t, q).Run(ctx, "UE_001", "cpu", sender))
	calls := q.calls()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, 1, calls)
	assert.Equal(t, calls, q.calls())
	assert.Equal(t, []lib.CloseCode{lib.CloseNormal}, sender.closes)
}
