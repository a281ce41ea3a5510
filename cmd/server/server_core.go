package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/compose"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/corestatus"
	"go.uber.org/zap"
)

func (s *Server) handleCoreAction(action string, run func(context.Context) (*compose.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := run(r.Context())
		s.deps.Telemetry.ObserveOperation("core", action, err)
		if err != nil {
			s.logger.Warn("Core action failed", zap.String("action", action), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleCoreServices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"services": s.deps.CoreStatus.Services()})
}

func (s *Server) handleCoreStatus(w http.ResponseWriter, r *http.Request) {
	service := mux.Vars(r)["service"]

	status, err := s.deps.CoreStatus.Status(r.Context(), service)
	if err != nil {
		switch {
		case lib.KindOf(err) == lib.KindNotFound:
			writeJSON(w, http.StatusNotFound, errorResponse{Detail: "Service not found"})
		case errors.Is(err, corestatus.ErrUnreachable):
			writeJSON(w, http.StatusBadGateway, errorResponse{Detail: "Bad Gateway: " + err.Error()})
		default:
			s.writeError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}
