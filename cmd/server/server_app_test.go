package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealthServer(t *testing.T) (*HealthServer, healthpb.HealthClient) {
	t.Helper()
	hs, err := NewHealthServer("127.0.0.1:0", nil, nil)
	require.NoError(t, err)
	go func() { _ = hs.Serve() }()
	t.Cleanup(hs.Stop)

	conn, err := grpc.NewClient(hs.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return hs, healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	st, err := checkStatus(client, service)
	require.NoError(t, err)
	return st
}

func checkStatus(client healthpb.HealthClient, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	return resp.GetStatus(), err
}

func servingIs(client healthpb.HealthClient, service string, want healthpb.HealthCheckResponse_ServingStatus) func() bool {
	return func() bool {
		st, err := checkStatus(client, service)
		return err == nil && st == want
	}
}

func TestHealthServerReportsEngineStatus(t *testing.T) {
	hs, client := startHealthServer(t)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, healthServiceGNB))

	hs.SetServing(healthServiceGNB, true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, healthServiceGNB))
}

func TestHealthWatchFollowsProbes(t *testing.T) {
	hs, client := startHealthServer(t)
	var capturing atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hs.Watch(ctx, 10*time.Millisecond, map[string]func() bool{
		healthServiceCapture: capturing.Load,
	})

	capturing.Store(true)
	require.Eventually(t, servingIs(client, healthServiceCapture, healthpb.HealthCheckResponse_SERVING),
		2*time.Second, 10*time.Millisecond)

	capturing.Store(false)
	require.Eventually(t, servingIs(client, healthServiceCapture, healthpb.HealthCheckResponse_NOT_SERVING),
		2*time.Second, 10*time.Millisecond)
}

func TestTLSConfigFromEnv(t *testing.T) {
	t.Run("unset disables TLS", func(t *testing.T) {
		cfg, err := tlsConfigFromEnv("TBM_TEST_CERT", "TBM_TEST_KEY", "TBM_TEST_CA")

		require.NoError(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("partial is an error", func(t *testing.T) {
		t.Setenv("TBM_TEST_CERT", "-----BEGIN CERTIFICATE-----")

		_, err := tlsConfigFromEnv("TBM_TEST_CERT", "TBM_TEST_KEY", "TBM_TEST_CA")

		assert.ErrorContains(t, err, "incomplete TLS environment")
	})

	t.Run("invalid key pair", func(t *testing.T) {
		t.Setenv("TBM_TEST_CERT", "not a cert")
		t.Setenv("TBM_TEST_KEY", "not a key")
		t.Setenv("TBM_TEST_CA", "not a ca")

		_, err := tlsConfigFromEnv("TBM_TEST_CERT", "TBM_TEST_KEY", "TBM_TEST_CA")

		assert.ErrorContains(t, err, "failed to load server key pair")
	})
}
