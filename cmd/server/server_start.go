package main

import (
	"net/http"

	"go.uber.org/zap"
)

func (s *Server) handleGNBStart(w http.ResponseWriter, r *http.Request) {
	cmd := s.deps.GNB.Command()
	s.logger.Info("Starting gNB", zap.String("command", cmd.Command), zap.Strings("args", cmd.Args))

	err := s.deps.GNB.Start()
	s.deps.Telemetry.ObserveOperation("gnb", "start", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	st := s.deps.GNB.Status()
	s.logger.Info("Started gNB", zap.Int("pid", st.Pid))
	writeJSON(w, http.StatusOK, actionResponse{Message: "gNB started", Pid: st.Pid})
}
