package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/metrics"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, address string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--address", address}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func respond(status int, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func TestClientDecodesDetail(t *testing.T) {
	srv := httptest.NewServer(respond(http.StatusConflict, map[string]string{"detail": "Process is already running"}))
	defer srv.Close()

	c, err := newClient(srv.URL)
	require.NoError(t, err)

	err = c.do(context.Background(), http.MethodPost, "/gnb/start", nil, nil)

	require.Error(t, err)
	assert.True(t, isStatus(err, http.StatusConflict))
	assert.EqualError(t, err, "server returned 409: Process is already running")
}

func TestClientRejectsBadAddress(t *testing.T) {
	_, err := newClient("localhost:8001")
	assert.ErrorContains(t, err, "scheme must be http or https")
}

func TestStartPrintsPid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /gnb/start", respond(http.StatusOK, actionResponse{Message: "Process started", Pid: 4242}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out, _, err := runCLI(t, srv.URL, "start")

	require.NoError(t, err)
	assert.Equal(t, "4242\n", out)
}

func TestStopWhenNotRunning(t *testing.T) {
	srv := httptest.NewServer(respond(http.StatusConflict, map[string]string{"detail": "Process is not running"}))
	defer srv.Close()

	out, errOut, err := runCLI(t, srv.URL, "stop")

	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "gNB is not running.")
}

func TestStatusTable(t *testing.T) {
	code := 0
	srv := httptest.NewServer(respond(http.StatusOK, statusResponse{
		State:    "exited",
		Pid:      77,
		ExitCode: &code,
		Command:  []string{"/opt/gnb/nr-softmodem", "-O", "gnb.conf"},
	}))
	defer srv.Close()

	out, _, err := runCLI(t, srv.URL, "status")

	require.NoError(t, err)
	assert.Contains(t, out, "| PID     | STATE      | COMMAND")
	assert.Contains(t, out, "| 77      | exited (0) | /opt/gnb/nr-softmodem -O gnb.conf |")
}

func TestCaptureStartSendsInterface(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("interface")
		respond(http.StatusOK, captureResponse{Message: "Capture started", Interface: "demo-oai", File: "/captures/x.pcap"})(w, r)
	}))
	defer srv.Close()

	out, _, err := runCLI(t, srv.URL, "capture", "start", "-i", "demo-oai")

	require.NoError(t, err)
	assert.Equal(t, "demo-oai", got)
	assert.Equal(t, "Capture started on demo-oai: /captures/x.pcap\n", out)
}

func TestCoreStatusNotFound(t *testing.T) {
	srv := httptest.NewServer(respond(http.StatusNotFound, map[string]string{"detail": "Service not found"}))
	defer srv.Close()

	_, _, err := runCLI(t, srv.URL, "core", "status", "nope")

	assert.EqualError(t, err, "server returned 404: Service not found")
}

func TestPacketsPrintsRecordsUntilNormalClose(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "udp port 2152", r.URL.Query().Get("filter"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx := r.Context()
		_ = wsjson.Write(ctx, conn, packets.Record{Summary: "UDP 10.0.0.1:2152 -> 10.0.0.2:2152 len=64", Timestamp: &ts})
		_ = wsjson.Write(ctx, conn, packets.Record{Error: "cannot decode packet"})
		_ = conn.Close(websocket.StatusNormalClosure, "capture ended")
	}))
	defer srv.Close()

	out, _, err := runCLI(t, srv.URL, "packets", "-f", "udp port 2152")

	require.NoError(t, err)
	assert.Equal(t,
		"2024-05-01T12:00:00Z UDP 10.0.0.1:2152 -> 10.0.0.2:2152 len=64\nerror: cannot decode packet\n", out)
}

func TestMetricsAbnormalCloseIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = wsjson.Write(r.Context(), conn, map[string]string{"error": "influx unavailable"})
		_ = conn.Close(websocket.StatusInternalError, "influx unavailable")
	}))
	defer srv.Close()

	out, _, err := runCLI(t, srv.URL, "metrics", "--ue-id", "1", "--metric", "dl_bitrate")

	require.Error(t, err)
	assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))
	assert.Equal(t, "error: influx unavailable\n", out)
}

func TestDialStreamRejectedBeforeUpgrade(t *testing.T) {
	srv := httptest.NewServer(respond(http.StatusConflict, map[string]string{"detail": "Process is not running"}))
	defer srv.Close()

	_, _, err := runCLI(t, srv.URL, "logs")

	assert.True(t, isStatus(err, http.StatusConflict))
}

func TestFormatMetric(t *testing.T) {
	f := metricFrame{Message: metrics.Message{
		UEID:      "1",
		Metric:    "dl_bitrate",
		Value:     12.5,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}

	assert.Equal(t, "2024-05-01T12:00:00Z 1 dl_bitrate=12.5", formatMetric(f))
}

func TestHealthCredentials(t *testing.T) {
	t.Run("unset is insecure", func(t *testing.T) {
		creds, err := healthCredentials()

		require.NoError(t, err)
		assert.Equal(t, "insecure", creds.Info().SecurityProtocol)
	})

	t.Run("partial is an error", func(t *testing.T) {
		t.Setenv("TBCTL_TLS_KEY", "key")

		_, err := healthCredentials()

		assert.ErrorContains(t, err, "incomplete TLS environment variables")
	})
}
