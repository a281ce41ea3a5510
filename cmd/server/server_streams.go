package main

import (
	"net/http"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"go.uber.org/zap"
)

// handlePacketStream streams live packet records for ?interface= with an
// optional BPF ?filter=.
func (s *Server) handlePacketStream(w http.ResponseWriter, r *http.Request) {
	iface := r.URL.Query().Get("interface")
	if iface == "" {
		iface = s.deps.DefaultInterface
	}
	filter := r.URL.Query().Get("filter")

	conn, err := s.accept(w, r)
	if err != nil {
		return
	}
	ctx := conn.CloseRead(r.Context())

	sender := s.deps.Telemetry.Track("packets", newWSSender(conn))
	err = s.deps.Packets.Run(ctx, iface, filter, sender)
	s.deps.Telemetry.StreamEnded("packets", err)
	if err != nil {
		s.logger.Info("Packet stream ended with error", zap.String("interface", iface), zap.Error(err))
	}
}

// handleMetricStream streams new points of ?metric_name= for ?ue_id=.
func (s *Server) handleMetricStream(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("ue_id")
	metric := r.URL.Query().Get("metric_name")
	if subjectID == "" || metric == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "ue_id and metric_name are required"})
		return
	}

	conn, err := s.accept(w, r)
	if err != nil {
		return
	}
	ctx := conn.CloseRead(r.Context())

	sender := s.deps.Telemetry.Track("metrics", newWSSender(conn))
	err = s.deps.Metrics.Run(ctx, subjectID, metric, sender)
	s.deps.Telemetry.StreamEnded("metrics", err)
	if err != nil && lib.KindOf(err) != lib.KindTransport {
		s.logger.Info("Metric stream ended with error", zap.String("ue_id", subjectID), zap.Error(err))
	}
}
