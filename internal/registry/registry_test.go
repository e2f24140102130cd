package registry

import (
	"reflect"
	"testing"
	"time"

	"api-gateway-go/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Services: map[string]config.ServiceConfig{
			"sso":     {BaseURL: "http://sso.internal", TimeoutMS: 1000},
			"core":    {BaseURL: "https://core.internal:8443", TimeoutMS: 30000},
			"reports": {Description: "declared, not configured"},
		},
	}
}

func TestResolve_Registered(t *testing.T) {
	r := New(testConfig())

	tests := []struct {
		name        string
		wantBaseURL string
		wantTimeout time.Duration
	}{
		{"sso", "http://sso.internal", time.Second},
		{"core", "https://core.internal:8443", 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, ok := r.Resolve(tt.name)
			if !ok {
				t.Fatalf("Resolve(%q) reported a miss", tt.name)
			}
			if ep.Name != tt.name {
				t.Errorf("Name = %q, want %q", ep.Name, tt.name)
			}
			if ep.BaseURL != tt.wantBaseURL {
				t.Errorf("BaseURL = %q, want %q", ep.BaseURL, tt.wantBaseURL)
			}
			if ep.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", ep.Timeout, tt.wantTimeout)
			}
		})
	}
}

func TestResolve_NotConfigured(t *testing.T) {
	r := New(testConfig())

	for _, name := range []string{"unknown", "reports", "", "SSO"} {
		t.Run(name, func(t *testing.T) {
			if ep, ok := r.Resolve(name); ok {
				t.Errorf("Resolve(%q) = %+v, want miss", name, ep)
			}
		})
	}
}

func TestNames(t *testing.T) {
	r := New(testConfig())

	got := r.Names()
	if want := []string{"core", "sso"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	got[0] = "mutated"
	if r.Names()[0] != "core" {
		t.Error("Names() must return a copy")
	}
}

func TestResolve_ResponseCap(t *testing.T) {
	cfg := testConfig()
	cfg.Upstream.MaxResponseBytes = 2048
	r := New(cfg)

	ep, ok := r.Resolve("sso")
	if !ok {
		t.Fatal("Resolve(\"sso\") reported a miss")
	}
	if ep.MaxResponseBytes != 2048 {
		t.Errorf("MaxResponseBytes = %d, want %d", ep.MaxResponseBytes, 2048)
	}
}
