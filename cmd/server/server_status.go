package main

import (
	"net/http"
)

func (s *Server) handleGNBStatus(w http.ResponseWriter, _ *http.Request) {
	resp := toStatusResponse(s.deps.GNB.IsRunning(), s.deps.GNB.Status(), s.deps.GNB.Command())
	writeJSON(w, http.StatusOK, resp)
}
