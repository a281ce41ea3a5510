package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/oai-testbed/testbed-monitor/internal/telemetry"
	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/capture"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/compose"
	"go.uber.org/zap"
)

type gnbSupervisor interface {
	Start() error
	Stop() (int, error)
	IsRunning() bool
	Status() lib.ProcessStatus
	Command() lib.Command
	Following() bool
	Follow(ctx context.Context, sender lib.Sender, timeout time.Duration) error
}

type captureManager interface {
	Start(iface string) (string, error)
	Stop() (string, error)
	Status() capture.Status
}

type packetStreamer interface {
	Run(ctx context.Context, iface, filter string, sender lib.Sender) error
}

type metricStreamer interface {
	Run(ctx context.Context, subjectID, metric string, sender lib.Sender) error
}

type coreOrchestrator interface {
	Up(ctx context.Context) (*compose.Result, error)
	Down(ctx context.Context) (*compose.Result, error)
	Restart(ctx context.Context) (*compose.Result, error)
}

type coreStatusReader interface {
	Status(ctx context.Context, service string) (string, error)
	Services() []string
}

// Deps are the engines the HTTP layer drives.
type Deps struct {
	GNB        gnbSupervisor
	Capture    captureManager
	Packets    packetStreamer
	Metrics    metricStreamer
	Core       coreOrchestrator
	CoreStatus coreStatusReader
	Telemetry  *telemetry.Metrics
	Logger     *zap.Logger

	FollowTimeout    time.Duration
	DefaultInterface string
	OriginPatterns   []string
}

// Server maps HTTP and WebSocket routes onto the engines.
type Server struct {
	deps   Deps
	logger *zap.Logger
	router *mux.Router
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.New()
	}
	if deps.DefaultInterface == "" {
		deps.DefaultInterface = capture.DefaultInterface
	}

	s := &Server{deps: deps, logger: logger.Named("http"), router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.HandleFunc("/gnb/start", s.handleGNBStart).Methods(http.MethodPost)
	r.HandleFunc("/gnb/stop", s.handleGNBStop).Methods(http.MethodPost)
	r.HandleFunc("/gnb/status", s.handleGNBStatus).Methods(http.MethodGet)
	r.HandleFunc("/ws/gnb/logs", s.handleGNBLogs).Methods(http.MethodGet)

	r.HandleFunc("/capture/start", s.handleCaptureStart).Methods(http.MethodPost)
	r.HandleFunc("/capture/stop", s.handleCaptureStop).Methods(http.MethodPost)
	r.HandleFunc("/capture/status", s.handleCaptureStatus).Methods(http.MethodGet)

	r.HandleFunc("/ws/packets", s.handlePacketStream).Methods(http.MethodGet)
	r.HandleFunc("/ws/metrics", s.handleMetricStream).Methods(http.MethodGet)

	r.HandleFunc("/core/start", s.handleCoreAction("start", s.deps.Core.Up)).Methods(http.MethodPost)
	r.HandleFunc("/core/stop", s.handleCoreAction("stop", s.deps.Core.Down)).Methods(http.MethodPost)
	r.HandleFunc("/core/restart", s.handleCoreAction("restart", s.deps.Core.Restart)).Methods(http.MethodPost)
	r.HandleFunc("/core/services", s.handleCoreServices).Methods(http.MethodGet)
	r.HandleFunc("/core/{service}/status", s.handleCoreStatus).Methods(http.MethodGet)

	r.Handle("/metrics", s.deps.Telemetry.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
