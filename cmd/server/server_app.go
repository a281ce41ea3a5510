package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/oai-testbed/testbed-monitor/internal/config"
	"github.com/oai-testbed/testbed-monitor/internal/telemetry"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/capture"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/compose"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/corestatus"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/metrics"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/packets"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/procexec"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/runner"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

// Health service names reported by the gRPC endpoint besides the overall "".
const (
	healthServiceGNB     = "gnb"
	healthServiceCapture = "capture"
)

// App owns the listeners and the long-lived engines.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	gnb     *runner.Supervisor
	capture *capture.Manager
	influx  *metrics.InfluxQuerier

	http   *http.Server
	health *HealthServer
}

func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	args := cfg.GNB.Args
	if len(args) == 0 {
		args = nil
	}
	gnb := runner.New(runner.Options{
		ExecutablePath: cfg.GNB.Executable,
		ConfigPath:     cfg.GNB.ConfigFile,
		Args:           args,
		Logger:         logger,
	})

	captures := capture.NewManager(capture.Options{
		Directory:        cfg.Capture.Directory,
		Tool:             cfg.Capture.Tool,
		DefaultInterface: cfg.Capture.DefaultInterface,
		StopTimeout:      cfg.Capture.StopTimeout,
		Logger:           logger,
	})

	stream := packets.NewStream(packets.Options{
		Source:                packets.TsharkSource{Tool: cfg.Packets.Tool, Logger: logger.Named("tshark")},
		PollInterval:          cfg.Packets.PollInterval,
		ContinueOnRecordError: cfg.Packets.ContinueOnRecordError,
		Logger:                logger,
	})

	influx := metrics.NewInfluxQuerier(metrics.InfluxOptions{
		URL:         cfg.Metrics.InfluxURL,
		Token:       cfg.Metrics.InfluxToken,
		Org:         cfg.Metrics.InfluxOrg,
		Bucket:      cfg.Metrics.InfluxBucket,
		Measurement: cfg.Metrics.Measurement,
		SubjectTag:  cfg.Metrics.SubjectTag,
	})
	poller := metrics.NewPoller(metrics.Options{
		Querier:      influx,
		PollInterval: cfg.Metrics.PollInterval,
		Lookback:     cfg.Metrics.Lookback,
		Logger:       logger,
	})

	core := compose.NewManager(compose.Options{
		Binary:      cfg.Core.ComposeBinary,
		ComposeFile: cfg.Core.ComposeFile,
		Runner:      procexec.ExecRunner{Logger: logger.Named("exec")},
		Logger:      logger,
	})
	coreStatus, err := corestatus.New(corestatus.Options{
		URL:      cfg.Prometheus.URL,
		Metric:   cfg.Prometheus.Metric,
		Services: cfg.Core.ServiceMap(),
		Timeout:  cfg.Prometheus.Timeout,
		Logger:   logger,
	})
	if err != nil {
		influx.Close()
		return nil, err
	}

	srv := NewServer(Deps{
		GNB:              gnb,
		Capture:          captures,
		Packets:          stream,
		Metrics:          poller,
		Core:             core,
		CoreStatus:       coreStatus,
		Telemetry:        telemetry.New(),
		Logger:           logger,
		FollowTimeout:    cfg.GNB.FollowTimeout,
		DefaultInterface: cfg.Capture.DefaultInterface,
		OriginPatterns:   cfg.Server.OriginPatterns,
	})

	app := &App{
		cfg:     cfg,
		logger:  logger,
		gnb:     gnb,
		capture: captures,
		influx:  influx,
		http: &http.Server{
			Addr:              cfg.Server.HTTPAddress,
			Handler:           srv,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	if cfg.Server.GRPCAddress != "" {
		tlsConfig, err := tlsConfigFromEnv(cfg.Server.TLSCertEnv, cfg.Server.TLSKeyEnv, cfg.Server.TLSCAEnv)
		if err != nil {
			influx.Close()
			return nil, err
		}
		app.health, err = NewHealthServer(cfg.Server.GRPCAddress, tlsConfig, cfg.Server.AllowedPeers)
		if err != nil {
			influx.Close()
			return nil, err
		}
	}

	return app, nil
}

// Run serves until ctx is cancelled or a listener fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	errc := make(chan error, 2)

	go func() {
		a.logger.Info("HTTP server listening", zap.String("address", a.http.Addr))
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if a.health != nil {
		mode := "insecure"
		if a.health.secure {
			mode = "mTLS"
		}
		a.logger.Info("gRPC health server listening", zap.Stringer("address", a.health.Addr()), zap.String("mode", mode))
		go func() {
			if err := a.health.Serve(); err != nil {
				errc <- fmt.Errorf("grpc health server: %w", err)
			}
		}()
		go a.health.Watch(watchCtx, a.cfg.Server.HealthInterval, map[string]func() bool{
			healthServiceGNB:     a.gnb.IsRunning,
			healthServiceCapture: func() bool { return a.capture.Status().Capturing },
		})
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down")
	case runErr = <-errc:
		a.logger.Error("Listener failed", zap.Error(runErr))
	}

	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(ctx); err != nil {
		a.logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if a.health != nil {
		a.health.Stop()
	}
	if a.gnb.IsRunning() {
		if pid, err := a.gnb.Stop(); err != nil {
			a.logger.Warn("Failed to stop gNB", zap.Error(err))
		} else {
			a.logger.Info("Stopped gNB", zap.Int("pid", pid))
		}
	}
	if a.capture.Status().Capturing {
		if _, err := a.capture.Stop(); err != nil {
			a.logger.Warn("Failed to stop capture", zap.Error(err))
		}
	}
	a.influx.Close()
}

// HealthServer serves grpc.health.v1 with one status per engine.
type HealthServer struct {
	lis    net.Listener
	s      *grpc.Server
	health *health.Server
	secure bool
}

// NewHealthServer listens on addr. With a non-nil tlsConfig clients must
// present a certificate carrying a SPIFFE ID, restricted to allowedPeers
// when that list is non-empty.
func NewHealthServer(addr string, tlsConfig *tls.Config, allowedPeers []string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	var opts []grpc.ServerOption
	if tlsConfig != nil {
		auth := peerAuthorizer{allowed: allowedPeers}
		opts = append(opts,
			grpc.Creds(credentials.NewTLS(tlsConfig)),
			grpc.UnaryInterceptor(auth.unary),
			grpc.StreamInterceptor(auth.stream))
	}
	s := grpc.NewServer(opts...)

	hs := health.NewServer()
	hs.SetServingStatus(healthServiceGNB, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(healthServiceCapture, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	return &HealthServer{lis: lis, s: s, health: hs, secure: tlsConfig != nil}, nil
}

func (h *HealthServer) Serve() error { return h.s.Serve(h.lis) }

// Addr returns the network address the server is bound to.
func (h *HealthServer) Addr() net.Addr { return h.lis.Addr() }

// Stop marks every service NOT_SERVING and gracefully stops the server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.s.GracefulStop()
}

// SetServing updates one service's status.
func (h *HealthServer) SetServing(service string, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(service, st)
}

// Watch refreshes the probed services every interval until ctx is done.
func (h *HealthServer) Watch(ctx context.Context, interval time.Duration, probes map[string]func() bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for service, probe := range probes {
			h.SetServing(service, probe())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tlsConfigFromEnv builds an mTLS server config from PEM values held in the
// named environment variables. It returns nil when none are set.
func tlsConfigFromEnv(certEnv, keyEnv, caEnv string) (*tls.Config, error) {
	certPEM := os.Getenv(certEnv)
	keyPEM := os.Getenv(keyEnv)
	caPEM := os.Getenv(caEnv)

	set := 0
	for _, v := range []string{certPEM, keyPEM, caPEM} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	switch set {
	case 0:
		return nil, nil
	case 3:
	default:
		return nil, fmt.Errorf("incomplete TLS environment; require %s, %s and %s", certEnv, keyEnv, caEnv)
	}

	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to load server key pair: %w", err)
	}
	caPool := x509.NewCertPool()
	if ok := caPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
		return nil, fmt.Errorf("failed to append CA certificate to pool")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    caPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
