// Package registry resolves service names to upstream endpoints.
package registry

import (
	"sort"
	"time"

	"api-gateway-go/internal/config"
	"api-gateway-go/internal/model"
)

// Registry is an immutable name -> endpoint table built once at startup.
// It is safe for concurrent use without locking because nothing writes to
// it after New returns.
type Registry struct {
	endpoints map[string]model.ServiceEndpoint
	names     []string
}

// New builds a Registry from every declared service that has a base URL.
// Declared services without one are left out so that lookups for them
// report a miss.
func New(cfg *config.Config) *Registry {
	r := &Registry{endpoints: make(map[string]model.ServiceEndpoint, len(cfg.Services))}
	for name, svc := range cfg.Services {
		if svc.BaseURL == "" {
			continue
		}
		r.endpoints[name] = model.ServiceEndpoint{
			Name:    name,
			BaseURL: svc.BaseURL,
			Timeout: time.Duration(svc.TimeoutMS) * time.Millisecond,

			MaxResponseBytes: cfg.Upstream.MaxResponseBytes,
		}
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r
}

// Resolve returns the endpoint registered under name. The boolean is false
// when the service is not configured.
func (r *Registry) Resolve(name string) (model.ServiceEndpoint, bool) {
	ep, ok := r.endpoints[name]
	return ep, ok
}

// Names returns the configured service names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
