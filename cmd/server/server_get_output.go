package main

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"go.uber.org/zap"
)

// handleGNBLogs follows the gNB output over a WebSocket, one text message
// per line.
func (s *Server) handleGNBLogs(w http.ResponseWriter, r *http.Request) {
	if !s.deps.GNB.IsRunning() {
		s.writeError(w, r, lib.Errorf(lib.KindNotRunning, "gNB is not running"))
		return
	}
	if s.deps.GNB.Following() {
		s.writeError(w, r, lib.Errorf(lib.KindAlreadyRunning, "gNB logs are already being followed"))
		return
	}

	conn, err := s.accept(w, r)
	if err != nil {
		return
	}
	ctx := conn.CloseRead(r.Context())

	sender := s.deps.Telemetry.Track("gnb_logs", newWSSender(conn))
	err = s.deps.GNB.Follow(ctx, sender, s.deps.FollowTimeout)
	s.deps.Telemetry.StreamEnded("gnb_logs", err)
	if err != nil {
		s.logger.Debug("Log stream ended with error", zap.Error(err))
	}
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.deps.OriginPatterns})
	if err != nil {
		// Accept has already written the HTTP error.
		s.logger.Debug("WebSocket upgrade failed", zap.String("path", r.URL.Path), zap.Error(err))
		return nil, err
	}
	return conn, nil
}
