package credentials

import (
	"context"
	"testing"

	"github.com/j-veylop/cascade-quota-engine/internal/transport"
)

// stubSource records whether it was consulted.
type stubSource struct {
	name   string
	cfg    *transport.Config
	called bool
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Resolve(context.Context) (*transport.Config, bool) {
	s.called = true
	return s.cfg, s.cfg != nil
}

func TestChainShortCircuits(t *testing.T) {
	local := &stubSource{name: "local", cfg: transport.NewLocal(42100, "tok")}
	stored := &stubSource{name: "stored", cfg: transport.NewRemote("https://example.com", "sk-x")}
	env := &stubSource{name: "env"}

	chain := NewChain(local, stored, env)
	cfg, ok := chain.Resolve(context.Background())
	if !ok {
		t.Fatal("Resolve() = false, want success")
	}
	if cfg.Mode != transport.AuthLocalSecret {
		t.Errorf("Mode = %v, want local secret", cfg.Mode)
	}
	if stored.called || env.called {
		t.Error("later sources consulted after an earlier success")
	}
}

func TestChainFallsThrough(t *testing.T) {
	first := &stubSource{name: "first"}
	second := &stubSource{name: "second", cfg: transport.NewRemote("https://example.com", "sk-x")}

	chain := NewChain(first, second)
	cfg, ok := chain.Resolve(context.Background())
	if !ok {
		t.Fatal("Resolve() = false, want fallback success")
	}
	if !first.called {
		t.Error("first source skipped")
	}
	if cfg.BaseURL != "https://example.com" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
}

func TestChainAllMiss(t *testing.T) {
	chain := NewChain(&stubSource{name: "a"}, &stubSource{name: "b"})
	if _, ok := chain.Resolve(context.Background()); ok {
		t.Error("Resolve() = true, want not-configured")
	}
}

func TestEnvSource(t *testing.T) {
	if _, ok := NewEnvSource("", "").Resolve(context.Background()); ok {
		t.Error("empty token resolved")
	}

	cfg, ok := NewEnvSource("", "sk-tok").Resolve(context.Background())
	if !ok {
		t.Fatal("Resolve() = false, want success")
	}
	if cfg.BaseURL != transport.DefaultRemoteBase {
		t.Errorf("BaseURL = %q, want default remote base", cfg.BaseURL)
	}

	cfg, ok = NewEnvSource("https://override.example.com", "sk-tok").Resolve(context.Background())
	if !ok || cfg.BaseURL != "https://override.example.com" {
		t.Errorf("override URL not honored: %+v ok=%v", cfg, ok)
	}
}
