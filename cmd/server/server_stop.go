package main

import (
	"net/http"

	"go.uber.org/zap"
)

func (s *Server) handleGNBStop(w http.ResponseWriter, r *http.Request) {
	pid, err := s.deps.GNB.Stop()
	s.deps.Telemetry.ObserveOperation("gnb", "stop", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("Stopped gNB", zap.Int("pid", pid))
	writeJSON(w, http.StatusOK, actionResponse{Message: "gNB stopped", Pid: pid})
}
