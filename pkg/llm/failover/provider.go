package failover

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"geoquery/pkg/llm"
)

// Provider wraps multiple LLM providers and falls through the chain when
// a provider errors or lacks the requested profile.
type Provider struct {
	providers []llm.Provider
	names     []string
	mu        sync.RWMutex
}

// New creates a failover chain. Providers are tried in order.
func New(providers []llm.Provider, names []string) (*Provider, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider required for failover")
	}
	if len(providers) != len(names) {
		return nil, fmt.Errorf("provider count (%d) does not match name count (%d)", len(providers), len(names))
	}
	return &Provider{providers: providers, names: names}, nil
}

// GenerateText implements llm.Provider.
func (f *Provider) GenerateText(ctx context.Context, name, prompt string) (string, error) {
	res, err := f.execute(ctx, name, func(p llm.Provider) (any, error) {
		return p.GenerateText(ctx, name, prompt)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// GenerateJSON implements llm.Provider.
func (f *Provider) GenerateJSON(ctx context.Context, name, prompt string, target any) error {
	_, err := f.execute(ctx, name, func(p llm.Provider) (any, error) {
		if err := p.GenerateJSON(ctx, name, prompt, target); err != nil {
			return nil, err
		}
		return target, nil
	})
	return err
}

// HasProfile implements llm.Provider.
func (f *Provider) HasProfile(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, p := range f.providers {
		if p.HasProfile(name) {
			return true
		}
	}
	return false
}

// HealthCheck verifies that at least one provider is healthy.
func (f *Provider) HealthCheck(ctx context.Context) error {
	f.mu.RLock()
	providers := f.providers
	names := f.names
	f.mu.RUnlock()

	var errs []string
	for i, p := range providers {
		if err := p.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", names[i], err))
			continue
		}
		return nil
	}
	return fmt.Errorf("all LLM providers failed health check: %s", strings.Join(errs, "; "))
}

// execute runs the given function against the provider chain.
func (f *Provider) execute(ctx context.Context, profile string, fn func(llm.Provider) (any, error)) (any, error) {
	f.mu.RLock()
	providers := f.providers
	names := f.names
	f.mu.RUnlock()

	var lastErr error
	tried := 0
	for i, p := range providers {
		if !p.HasProfile(profile) {
			continue
		}
		tried++

		res, err := fn(p)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// The request deadline fired; trying the next provider
			// would fail the same way.
			return nil, ctx.Err()
		}
		slog.Warn("LLM provider failed, trying next", "provider", names[i], "profile", profile, "error", err)
	}

	if tried == 0 {
		return nil, fmt.Errorf("no provider configured for profile %q", profile)
	}
	return nil, fmt.Errorf("all providers failed for profile %q: %w", profile, lastErr)
}
