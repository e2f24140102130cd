package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"api-gateway-go/internal/config"
	"api-gateway-go/internal/metrics"
	"api-gateway-go/internal/model"
)

func newTestClient(m *metrics.Metrics) *UpstreamClient {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{IdleConnections: 10},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUpstreamClient(cfg, logger, m)
}

func TestUpstreamClient_Dispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sso/auth/login" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/api/sso/auth/login")
		}
		if r.URL.RawQuery != "next=%2Fhome" {
			t.Errorf("query = %q, want %q", r.URL.RawQuery, "next=%2Fhome")
		}
		if got := r.Header.Get("X-Request-Id"); got != "req_1_abc" {
			t.Errorf("X-Request-Id = %q, want %q", got, "req_1_abc")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"user":"a"}` {
			t.Errorf("body = %q, want %q", body, `{"user":"a"}`)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":"abc"}`))
	}))
	defer srv.Close()

	c := newTestClient(nil)
	ep := model.ServiceEndpoint{Name: "sso", BaseURL: srv.URL, Timeout: 5 * time.Second}
	header := http.Header{"X-Request-Id": {"req_1_abc"}, "Content-Type": {"application/json"}}

	resp, err := c.Dispatch(context.Background(), ep, http.MethodPost, "/api/sso/auth/login?next=%2Fhome", header, []byte(`{"user":"a"}`))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if string(resp.Body.Data) != `{"token":"abc"}` {
		t.Errorf("body = %q, want %q", resp.Body.Data, `{"token":"abc"}`)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q, want %q", resp.Header.Get("Content-Type"), "application/json")
	}
}

func TestUpstreamClient_Dispatch_UpstreamErrorStatusIsAResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(nil)
	ep := model.ServiceEndpoint{Name: "core", BaseURL: srv.URL, Timeout: time.Second}

	resp, err := c.Dispatch(context.Background(), ep, http.MethodGet, "/x", http.Header{}, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
}

func TestUpstreamClient_Dispatch_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/moved" {
			t.Error("redirect should not be followed")
		}
		http.Redirect(w, r, "/moved", http.StatusFound)
	}))
	defer srv.Close()

	c := newTestClient(nil)
	ep := model.ServiceEndpoint{Name: "core", BaseURL: srv.URL, Timeout: time.Second}

	resp, err := c.Dispatch(context.Background(), ep, http.MethodGet, "/old", http.Header{}, nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if resp.Header.Get("Location") != "/moved" {
		t.Errorf("Location = %q, want %q", resp.Header.Get("Location"), "/moved")
	}
}

func TestUpstreamClient_Dispatch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	m := metrics.New([]string{"slow"})
	c := newTestClient(m)
	ep := model.ServiceEndpoint{Name: "slow", BaseURL: srv.URL, Timeout: 100 * time.Millisecond}

	start := time.Now()
	_, err := c.Dispatch(context.Background(), ep, http.MethodGet, "/wait", http.Header{}, nil)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Dispatch() error = %v, want ErrTimeout", err)
	}
	if errors.Is(err, ErrUnreachable) {
		t.Error("timeout must not also classify as unreachable")
	}
	if elapsed > time.Second {
		t.Errorf("Dispatch() took %v, want close to the 100ms budget", elapsed)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() != "api_gateway_upstream_failures_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "kind" && lp.GetValue() == "timeout" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected api_gateway_upstream_failures_total with kind=timeout")
	}
}

func TestUpstreamClient_Dispatch_ResponseCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	c := newTestClient(nil)

	tests := []struct {
		name    string
		limit   int64
		wantErr bool
	}{
		{"under cap", 1000, false},
		{"exactly at cap", 100, false},
		{"over cap", 99, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := model.ServiceEndpoint{Name: "core", BaseURL: srv.URL, Timeout: time.Second, MaxResponseBytes: tt.limit}
			resp, err := c.Dispatch(context.Background(), ep, http.MethodGet, "/big", http.Header{}, nil)
			if tt.wantErr {
				if !errors.Is(err, ErrResponseTooLarge) {
					t.Fatalf("Dispatch() error = %v, want ErrResponseTooLarge", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if len(resp.Body.Data) != 100 {
				t.Errorf("body length = %d, want 100", len(resp.Body.Data))
			}
		})
	}
}

func TestResponseLimit(t *testing.T) {
	if got := ResponseLimit(model.ServiceEndpoint{}); got != DefaultMaxResponseBytes {
		t.Errorf("ResponseLimit(zero) = %d, want %d", got, DefaultMaxResponseBytes)
	}
	if got := ResponseLimit(model.ServiceEndpoint{MaxResponseBytes: 42}); got != 42 {
		t.Errorf("ResponseLimit(42) = %d, want 42", got)
	}
}

func TestUpstreamClient_Dispatch_SlowBodyTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	c := newTestClient(nil)
	ep := model.ServiceEndpoint{Name: "slow", BaseURL: srv.URL, Timeout: 150 * time.Millisecond}

	_, err := c.Dispatch(context.Background(), ep, http.MethodGet, "/stream", http.Header{}, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Dispatch() error = %v, want ErrTimeout", err)
	}
}

func TestUpstreamClient_Dispatch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	c := newTestClient(nil)
	ep := model.ServiceEndpoint{Name: "gone", BaseURL: baseURL, Timeout: time.Second}

	_, err := c.Dispatch(context.Background(), ep, http.MethodGet, "/x", http.Header{}, nil)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Dispatch() error = %v, want ErrUnreachable", err)
	}
}

func TestUpstreamClient_Dispatch_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(nil)
	ep := model.ServiceEndpoint{Name: "core", BaseURL: srv.URL, Timeout: 30 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Dispatch(ctx, ep, http.MethodGet, "/x", http.Header{}, nil)
	if err == nil {
		t.Fatal("Dispatch() expected error for canceled context, got nil")
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("canceled context classified as timeout: %v", err)
	}
}

func TestUpstreamClient_Dispatch_InvalidURL(t *testing.T) {
	c := newTestClient(nil)
	ep := model.ServiceEndpoint{Name: "bad", BaseURL: "http://[::1", Timeout: time.Second}

	_, err := c.Dispatch(context.Background(), ep, http.MethodGet, "/x", http.Header{}, nil)
	if err == nil {
		t.Fatal("Dispatch() expected error for malformed URL, got nil")
	}
	if !strings.Contains(err.Error(), "build upstream request") {
		t.Errorf("error = %q, want build failure", err)
	}
}

func TestClassify(t *testing.T) {
	expired, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want model.FailureKind
	}{
		{"deadline from context", expired, errors.New("whatever"), model.Timeout},
		{"wrapped deadline", context.Background(), fmt.Errorf("x: %w", context.DeadlineExceeded), model.Timeout},
		{"canceled", context.Background(), fmt.Errorf("x: %w", context.Canceled), model.UpstreamError},
		{"dns", context.Background(), &net.DNSError{Err: "no such host", Name: "sso.internal"}, model.UpstreamUnreachable},
		{"dial", context.Background(), &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, model.UpstreamUnreachable},
		{"other", context.Background(), errors.New("malformed HTTP response"), model.UpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classify(tt.ctx, tt.err)
			if got != tt.want {
				t.Errorf("classify() kind = %v, want %v", got, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("classify() error %v does not wrap %v", err, tt.err)
			}
		})
	}
}
