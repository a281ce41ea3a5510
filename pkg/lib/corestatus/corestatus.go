// Package corestatus looks up core network container status in Prometheus.
package corestatus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oai-testbed/testbed-monitor/pkg/lib"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

const (
	DefaultURL    = "http://prometheus:9090"
	DefaultMetric = "oai_container_status"
)

var (
	// ErrUnreachable means Prometheus could not be reached at all.
	ErrUnreachable = errors.New("prometheus unreachable")
	// ErrInvalidResponse means Prometheus answered without a usable status.
	ErrInvalidResponse = errors.New("invalid prometheus response")
)

// Options configures a Client. Services maps service names to container names.
type Options struct {
	URL      string
	Metric   string
	Services map[string]string
	Timeout  time.Duration
	Now      func() time.Time
	Logger   *zap.Logger
}

type Client struct {
	api     v1.API
	options Options
	logger  *zap.Logger
}

func New(options Options) (*Client, error) {
	if options.URL == "" {
		options.URL = DefaultURL
	}
	if options.Metric == "" {
		options.Metric = DefaultMetric
	}
	if options.Timeout <= 0 {
		options.Timeout = 5 * time.Second
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c, err := api.NewClient(api.Config{Address: options.URL})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	return &Client{api: v1.NewAPI(c), options: options, logger: logger.Named("corestatus")}, nil
}

// Services returns the known service names, sorted.
func (c *Client) Services() []string {
	names := make([]string, 0, len(c.options.Services))
	for name := range c.options.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status returns the status label reported for the service's container.
func (c *Client) Status(ctx context.Context, service string) (string, error) {
	container, ok := c.options.Services[service]
	if !ok {
		return "", lib.Errorf(lib.KindNotFound, "service not found: %s", service)
	}

	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	query := fmt.Sprintf("%s{container=%q}", c.options.Metric, container)
	value, warnings, err := c.api.Query(ctx, query, c.options.Now())
	if err != nil {
		var apiErr *v1.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		c.logger.Warn("Prometheus query failed", zap.String("service", service), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	for _, w := range warnings {
		c.logger.Debug("Prometheus warning", zap.String("warning", w))
	}

	vector, ok := value.(model.Vector)
	if !ok || len(vector) == 0 {
		return "", fmt.Errorf("%w: metric not found or empty", ErrInvalidResponse)
	}
	status := vector[0].Metric["status"]
	if status == "" {
		return "", fmt.Errorf("%w: sample has no status label", ErrInvalidResponse)
	}
	return string(status), nil
}
