package credentials

import (
	"context"

	"github.com/j-veylop/cascade-quota-engine/internal/discovery"
	"github.com/j-veylop/cascade-quota-engine/internal/logger"
	"github.com/j-veylop/cascade-quota-engine/internal/transport"
)

// Source resolves a transport target from a single place. A false return
// means "this source has nothing", never an error.
type Source interface {
	Name() string
	Resolve(ctx context.Context) (*transport.Config, bool)
}

// Chain tries its sources strictly in order; the first success wins and later
// sources are never consulted. Sources are never combined.
type Chain struct {
	sources []Source
}

// NewChain builds a chain over the given sources.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// Resolve walks the chain. A false return means quota is not configured
// anywhere, which callers treat as absence rather than failure.
func (c *Chain) Resolve(ctx context.Context) (*transport.Config, bool) {
	for _, source := range c.sources {
		if cfg, ok := source.Resolve(ctx); ok {
			logger.Debug("credentials resolved", "source", source.Name())
			return cfg, true
		}
	}
	return nil, false
}

// LocalSource discovers the running local process. It is always attempted
// first: it needs no stored secret and reflects the instance actually running.
type LocalSource struct {
	finder *discovery.Finder
}

// NewLocalSource wraps a process finder as a credential source.
func NewLocalSource(finder *discovery.Finder) *LocalSource {
	return &LocalSource{finder: finder}
}

func (s *LocalSource) Name() string { return "local-process" }

func (s *LocalSource) Resolve(ctx context.Context) (*transport.Config, bool) {
	info, ok := s.finder.Discover(ctx)
	if !ok {
		return nil, false
	}
	return transport.NewLocal(info.Port, info.Secret), true
}

// StoredAuthSource combines a credential from the host's auth store with an
// operator-supplied remote URL. Skipped when either half is missing.
type StoredAuthSource struct {
	store    *Store
	provider string
	baseURL  string
}

// NewStoredAuthSource builds a source over the store entry for provider.
func NewStoredAuthSource(store *Store, provider, baseURL string) *StoredAuthSource {
	return &StoredAuthSource{store: store, provider: provider, baseURL: baseURL}
}

func (s *StoredAuthSource) Name() string { return "auth-store" }

func (s *StoredAuthSource) Resolve(_ context.Context) (*transport.Config, bool) {
	if s.baseURL == "" {
		return nil, false
	}
	entry, ok := s.store.Get(s.provider)
	if !ok {
		return nil, false
	}
	token, ok := entry.Credential()
	if !ok {
		return nil, false
	}
	return transport.NewRemote(s.baseURL, token), true
}

// EnvSource uses an operator-supplied environment credential. The URL
// defaults to the well-known remote endpoint when unspecified.
type EnvSource struct {
	baseURL string
	token   string
}

// NewEnvSource builds a source from the configured override values.
func NewEnvSource(baseURL, token string) *EnvSource {
	return &EnvSource{baseURL: baseURL, token: token}
}

func (s *EnvSource) Name() string { return "environment" }

func (s *EnvSource) Resolve(_ context.Context) (*transport.Config, bool) {
	if s.token == "" {
		return nil, false
	}
	baseURL := s.baseURL
	if baseURL == "" {
		baseURL = transport.DefaultRemoteBase
	}
	return transport.NewRemote(baseURL, s.token), true
}
