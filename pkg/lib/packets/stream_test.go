package packets

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

type fakeSource struct {
	records []Record
	err     error
	// block keeps the capture open after the records until cancellation.
	block bool

	mu     sync.Mutex
	iface  string
	filter string
}

func (f *fakeSource) Capture(ctx context.Context, iface, filter string, emit func(Record) bool) error {
	f.mu.Lock()
	f.iface, f.filter = iface, filter
	f.mu.Unlock()

	for _, r := range f.records {
		if !emit(r) {
			return nil
		}
	}
	if f.err != nil {
		return f.err
	}
	if f.block {
		<-ctx.Done()
	}
	return nil
}

type fakeSender struct {
	mu sync.Mutex
	// failOn makes the n-th Send (1-based) fail.
	failOn int
	sends  int
	sent   []any
	closes []lib.CloseCode
}

func (f *fakeSender) Send(_ context.Context, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if f.failOn > 0 && f.sends == f.failOn {
		return errors.New("connection reset")
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeSender) Close(code lib.CloseCode, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, code)
	return nil
}

func (f *fakeSender) summaries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, v := range f.sent {
		rec := v.(Record)
		if rec.IsError() {
			out = append(out, "error")
			continue
		}
		out = append(out, rec.Summary)
	}
	return out
}

func newTestStream(t *testing.T, src Source, continueOnError bool) *Stream {
	return NewStream(Options{
		Source:                src,
		PollInterval:          10 * time.Millisecond,
		ContinueOnRecordError: continueOnError,
		Logger:                zaptest.NewLogger(t),
	})
}

var errRecord = ErrorRecord(lib.Errorf(lib.KindTransientParse, "cannot decode packet"))

func TestRunForwardsUntilCaptureEnds(t *testing.T) {
	src := &fakeSource{records: []Record{{Summary: "A"}, {Summary: "B"}}}
	sender := &fakeSender{}

	err := newTestStream(t, src, false).Run(context.Background(), "eth0", "udp", sender)

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, sender.summaries())
	assert.Equal(t, []lib.CloseCode{lib.CloseNormal}, sender.closes)
	assert.Equal(t, "eth0", src.iface)
	assert.Equal(t, "udp", src.filter)
}

func TestRunStopsAfterErrorRecord(t *testing.T) {
	src := &fakeSource{
		records: []Record{{Summary: "A"}, {Summary: "B"}, errRecord, {Summary: "C"}},
		block:   true,
	}
	sender := &fakeSender{}

	err := newTestStream(t, src, false).Run(context.Background(), "eth0", "", sender)

	assert.ErrorIs(t, err, lib.ErrTransientParse)
	assert.Equal(t, []string{"A", "B", "error"}, sender.summaries())
	assert.Equal(t, []lib.CloseCode{lib.CloseAbnormal}, sender.closes)
}

func TestRunContinuesPastErrorRecordWhenConfigured(t *testing.T) {
	src := &fakeSource{records: []Record{{Summary: "A"}, errRecord, {Summary: "B"}}}
	sender := &fakeSender{}

	err := newTestStream(t, src, true).Run(context.Background(), "eth0", "", sender)

	require.NoError(t, err)
	assert.Equal(t, []string{"A", "error", "B"}, sender.summaries())
	assert.Equal(t, []lib.CloseCode{lib.CloseNormal}, sender.closes)
}

func TestRunCaptureInitFailureIsAlwaysFatal(t *testing.T) {
	for _, continueOnError := range []bool{false, true} {
		src := &fakeSource{err: lib.Errorf(lib.KindCaptureInit, "no such device: wlan9")}
		sender := &fakeSender{}

		err := newTestStream(t, src, continueOnError).Run(context.Background(), "wlan9", "", sender)

		assert.ErrorIs(t, err, lib.ErrCaptureInit)
		require.Len(t, sender.sent, 1)
		rec := sender.sent[0].(Record)
		assert.Contains(t, rec.Error, "no such device")
		assert.Equal(t, []lib.CloseCode{lib.CloseAbnormal}, sender.closes)
	}
}

func TestRunSendFailureClosesOnce(t *testing.T) {
	src := &fakeSource{records: []Record{{Summary: "A"}, {Summary: "B"}, {Summary: "C"}}, block: true}
	sender := &fakeSender{failOn: 2}

	err := newTestStream(t, src, false).Run(context.Background(), "eth0", "", sender)

	assert.ErrorIs(t, err, lib.ErrTransport)
	assert.Equal(t, []string{"A"}, sender.summaries())
	assert.Equal(t, []lib.CloseCode{lib.CloseAbnormal}, sender.closes)
}

func TestRunCancellation(t *testing.T) {
	src := &fakeSource{block: true}
	sender := &fakeSender{}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- newTestStream(t, src, false).Run(ctx, "eth0", "", sender) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancellation")
	}
	assert.Empty(t, sender.sent)
	assert.Equal(t, []lib.CloseCode{lib.CloseNormal}, sender.closes)
}
