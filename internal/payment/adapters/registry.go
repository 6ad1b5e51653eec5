package adapters

import (
	"sort"
	"strings"

	"github.com/smallbiznis/talechto/internal/payment/domain"
)

// Registry resolves a webhook route's provider segment to its adapter.
type Registry map[string]domain.AdapterFactory

func NewRegistry(factories ...domain.AdapterFactory) Registry {
	registry := Registry{}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		if name := providerKey(factory.Provider()); name != "" {
			registry[name] = factory
		}
	}
	return registry
}

// Adapter builds a fresh adapter for provider.
func (r Registry) Adapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	factory, ok := r[providerKey(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewAdapter(cfg)
}

func (r Registry) Providers() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func providerKey(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
