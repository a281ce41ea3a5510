package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	defaultHealthAddress = "localhost:50051"
	healthAddressEnv     = "TBCTL_HEALTH_ADDRESS"
	defaultHealthTimeout = 5 * time.Second
)

// apiError is a non-2xx response from the monitor.
type apiError struct {
	StatusCode int
	Detail     string
}

func (e *apiError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
}

func isStatus(err error, code int) bool {
	var ae *apiError
	return errors.As(err, &ae) && ae.StatusCode == code
}

type client struct {
	base *url.URL
	http *http.Client
}

func newClient(address string) (*client, error) {
	u, err := url.Parse(strings.TrimRight(address, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid address %q: scheme must be http or https", address)
	}
	return &client{base: u, http: http.DefaultClient}, nil
}

func (c *client) endpoint(path string, query url.Values) *url.URL {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()
	return &u
}

// do sends one request and decodes a JSON body into out when it is non-nil.
func (c *client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query).String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var detail struct {
			Detail string `json:"detail"`
		}
		if err := json.Unmarshal(body, &detail); err != nil || detail.Detail == "" {
			detail.Detail = strings.TrimSpace(string(body))
		}
		return &apiError{StatusCode: resp.StatusCode, Detail: detail.Detail}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// dialStream opens a WebSocket to path on the monitor.
func (c *client) dialStream(ctx context.Context, path string, query url.Values) (*websocket.Conn, error) {
	u := c.endpoint(path, query)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			defer resp.Body.Close()
			var detail struct {
				Detail string `json:"detail"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&detail)
			return nil, &apiError{StatusCode: resp.StatusCode, Detail: detail.Detail}
		}
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

// dialHealth connects to the gRPC health endpoint. mTLS is used when
// TBCTL_TLS_KEY, TBCTL_TLS_CERT and TBCTL_CA_TLS_CERT are all set.
func dialHealth(addr string) (*grpc.ClientConn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = os.Getenv(healthAddressEnv)
	}
	if strings.TrimSpace(addr) == "" {
		addr = defaultHealthAddress
	}

	creds, err := healthCredentials()
	if err != nil {
		return nil, err
	}
	return grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
}

func healthCredentials() (credentials.TransportCredentials, error) {
	keyPEM := os.Getenv("TBCTL_TLS_KEY")
	certPEM := os.Getenv("TBCTL_TLS_CERT")
	caPEM := os.Getenv("TBCTL_CA_TLS_CERT")

	if strings.TrimSpace(keyPEM) == "" && strings.TrimSpace(certPEM) == "" && strings.TrimSpace(caPEM) == "" {
		return insecure.NewCredentials(), nil
	}
	if strings.TrimSpace(keyPEM) == "" || strings.TrimSpace(certPEM) == "" || strings.TrimSpace(caPEM) == "" {
		return nil, fmt.Errorf("incomplete TLS environment variables; require TBCTL_TLS_KEY, TBCTL_TLS_CERT, TBCTL_CA_TLS_CERT")
	}

	cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse TLS cert/key from env: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(caPEM)) {
		return nil, fmt.Errorf("failed to parse CA cert from env")
	}

	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}), nil
}
