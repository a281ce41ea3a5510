package main

import (
	"context"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/oai-testbed/testbed-monitor/pkg/lib"
)

const (
	writeTimeout = 10 * time.Second
	// maxCloseReason is the control frame payload limit minus the status code.
	maxCloseReason = 123
)

// wsSender adapts a WebSocket connection to lib.Sender. Strings go out as
// text frames as-is; anything else is encoded as JSON.
type wsSender struct {
	conn   *websocket.Conn
	closed atomic.Bool
}

func newWSSender(conn *websocket.Conn) *wsSender {
	return &wsSender{conn: conn}
}

func (s *wsSender) Send(ctx context.Context, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if line, ok := v.(string); ok {
		return s.conn.Write(ctx, websocket.MessageText, []byte(line))
	}
	return wsjson.Write(ctx, s.conn, v)
}

func (s *wsSender) Close(code lib.CloseCode, reason string) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close(closeStatus(code), truncateReason(reason))
}

// closeStatus maps stream outcomes to RFC 6455 codes. 1006 is reserved for
// local use and cannot be sent, so failures use 1011.
func closeStatus(code lib.CloseCode) websocket.StatusCode {
	if code == lib.CloseAbnormal {
		return websocket.StatusInternalError
	}
	return websocket.StatusNormalClosure
}

func truncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
