// Package email escalates high risk alerts by email through a registry of
// providers with fallback.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Request is one email to send.
type Request struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Provider is an email backend.
type Provider interface {
	Name() string
	// Send delivers req and returns the provider's message id.
	Send(ctx context.Context, req Request) (string, error)
	IsConfigured() bool
}

// ErrNoProvider is returned when no configured provider is available.
var ErrNoProvider = errors.New("no configured email provider available")

// Registry picks a primary provider and falls back in order on failure.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	primary   string
	fallback  []string
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{providers: make(map[string]Provider), logger: logger}
}

// Register adds a provider under its name.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	r.logger.Info("registered email provider", "name", p.Name(), "configured", p.IsConfigured())
}

// SetPrimary selects the provider tried first.
func (r *Registry) SetPrimary(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("email provider %q not registered", name)
	}
	r.primary = name
	return nil
}

// SetFallback sets the providers tried, in order, after the primary.
func (r *Registry) SetFallback(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("email provider %q not registered", name)
		}
	}
	r.fallback = names
	return nil
}

// candidates lists the configured providers in try order.
func (r *Registry) candidates() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Provider
	seen := map[string]bool{}
	for _, name := range append([]string{r.primary}, r.fallback...) {
		p, ok := r.providers[name]
		if !ok || seen[name] || !p.IsConfigured() {
			continue
		}
		seen[name] = true
		out = append(out, p)
	}
	return out
}

// Send tries each configured provider until one succeeds. The first
// provider's error is returned when all fail.
func (r *Registry) Send(ctx context.Context, req Request) (string, error) {
	providers := r.candidates()
	if len(providers) == 0 {
		return "", ErrNoProvider
	}
	var firstErr error
	for i, p := range providers {
		id, err := p.Send(ctx, req)
		if err == nil {
			return id, nil
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", p.Name(), err)
		}
		if i+1 < len(providers) {
			r.logger.Warn("email provider failed, trying fallback",
				"provider", p.Name(),
				"fallback", providers[i+1].Name(),
				"error", err,
			)
		}
	}
	return "", firstErr
}
