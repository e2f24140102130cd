// Package client provides the upstream HTTP client used to dispatch proxied calls.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"api-gateway-go/internal/config"
	"api-gateway-go/internal/metrics"
	"api-gateway-go/internal/model"
)

const (
	// DefaultTimeout applies to endpoints without a configured timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResponseBytes applies to endpoints without a response cap.
	DefaultMaxResponseBytes int64 = 64 << 20
)

// ResponseLimit returns the response body cap for ep.
func ResponseLimit(ep model.ServiceEndpoint) int64 {
	if ep.MaxResponseBytes > 0 {
		return ep.MaxResponseBytes
	}
	return DefaultMaxResponseBytes
}

// UpstreamClient sends requests to backend services.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
//
// The client itself has no overall timeout: every call is bounded by its
// endpoint's timeout through the request context instead.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
		// Accept-Encoding is whatever the client sent; never negotiate our own.
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			// Redirects are relayed to the caller, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Dispatch issues one call to ep.BaseURL+targetPath and buffers the whole
// response. Connecting, sending and reading the body all share a single
// deadline of ep.Timeout (DefaultTimeout when unset). Failures wrap
// ErrTimeout, ErrUnreachable or ErrResponseTooLarge where they apply. No
// retry is attempted.
func (c *UpstreamClient) Dispatch(ctx context.Context, ep model.ServiceEndpoint, method, targetPath string, header http.Header, body []byte) (*model.ProxyResponse, error) {
	timeout := ep.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader = http.NoBody
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	target := ep.BaseURL + targetPath
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(ctx, ep, req, start, fmt.Errorf("upstream request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	limit := ResponseLimit(ep)
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, c.fail(ctx, ep, req, start, fmt.Errorf("read upstream body: %w", err))
	}
	if int64(len(data)) > limit {
		return nil, c.fail(ctx, ep, req, start, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit))
	}
	duration := time.Since(start)

	method = metrics.NormalizeMethod(method)
	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(ep.Name, method).Observe(duration.Seconds())
		c.metrics.UpstreamResponses.WithLabelValues(ep.Name, method, strconv.Itoa(resp.StatusCode)).Inc()
	}

	c.logger.Info("upstream response",
		"service", ep.Name,
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"bytes_in", len(data),
		"duration_ms", duration.Milliseconds(),
		"request_id", header.Get("X-Request-Id"),
	)

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       model.Body{Kind: model.BodyBinary, Data: data},
	}, nil
}

func (c *UpstreamClient) fail(ctx context.Context, ep model.ServiceEndpoint, req *http.Request, start time.Time, err error) error {
	kind, err := classify(ctx, err)
	duration := time.Since(start)

	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(ep.Name, metrics.NormalizeMethod(req.Method)).Observe(duration.Seconds())
		c.metrics.UpstreamFailures.WithLabelValues(ep.Name, kind.String()).Inc()
	}

	c.logger.Warn("upstream failure",
		"service", ep.Name,
		"method", req.Method,
		"path", req.URL.Path,
		"kind", kind.String(),
		"err", err,
		"duration_ms", duration.Milliseconds(),
		"request_id", req.Header.Get("X-Request-Id"),
	)
	return err
}
