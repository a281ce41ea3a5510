package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/corestatus"
	"go.uber.org/zap"
)

type actionResponse struct {
	Message string `json:"message"`
	Pid     int    `json:"pid,omitempty"`
}

type statusResponse struct {
	Running   bool       `json:"running"`
	State     string     `json:"state"`
	Pid       int        `json:"pid,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Command   []string   `json:"command"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func toStatusResponse(running bool, st lib.ProcessStatus, cmd lib.Command) statusResponse {
	resp := statusResponse{
		Running:  running,
		State:    st.State.String(),
		Pid:      st.Pid,
		ExitCode: st.ExitCode,
		EndTime:  st.EndTime,
		Command:  append([]string{cmd.Command}, cmd.Args...),
	}
	if !st.StartTime.IsZero() {
		t := st.StartTime
		resp.StartTime = &t
	}
	return resp
}

func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, corestatus.ErrUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, corestatus.ErrInvalidResponse):
		return http.StatusInternalServerError
	}

	switch lib.KindOf(err) {
	case lib.KindAlreadyRunning, lib.KindNotRunning:
		return http.StatusConflict
	case lib.KindNotFound:
		return http.StatusNotFound
	case lib.KindPermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Warn("Request failed", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	} else {
		s.logger.Debug("Request rejected", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	}
	writeJSON(w, code, errorResponse{Detail: lib.DetailOf(err)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
