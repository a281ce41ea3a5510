package main

import (
	"net/http"
)

type captureResponse struct {
	Message   string `json:"message"`
	Interface string `json:"interface,omitempty"`
	File      string `json:"file"`
}

func (s *Server) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	path, err := s.deps.Capture.Start(r.URL.Query().Get("interface"))
	s.deps.Telemetry.ObserveOperation("capture", "start", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	st := s.deps.Capture.Status()
	writeJSON(w, http.StatusOK, captureResponse{Message: "Capture started", Interface: st.Interface, File: path})
}

func (s *Server) handleCaptureStop(w http.ResponseWriter, r *http.Request) {
	path, err := s.deps.Capture.Stop()
	s.deps.Telemetry.ObserveOperation("capture", "stop", err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, captureResponse{Message: "Capture stopped", File: path})
}

func (s *Server) handleCaptureStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Capture.Status())
}
