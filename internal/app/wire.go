package app

import (
	"context"

	"github.com/pkg/errors"

	"prekeyd/internal/auth"
	"prekeyd/internal/logger"
	"prekeyd/internal/ratelimit"
	"prekeyd/internal/relay"
	"prekeyd/internal/services/keys"
	"prekeyd/internal/store"
)

// Wire bundles the store, services and HTTP server built from a Config.
type Wire struct {
	Store   store.AccountWriter
	Keys    *keys.Service
	Limiter *ratelimit.Limiter
	Policy  *auth.Policy
	Server  *relay.Server
}

// NewWire constructs the dependency graph from cfg.
func NewWire(ctx context.Context, cfg *Config, log logger.Logger) (*Wire, error) {
	st, err := openStore(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.SeedFile != "" {
		seed, err := store.LoadSeed(cfg.SeedFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		if err := store.ApplySeed(ctx, st, seed, auth.HashPassword); err != nil {
			_ = st.Close()
			return nil, err
		}
		log.Infof("Seeded %d accounts from %s", len(seed.Accounts), cfg.SeedFile)
	}

	limiter, err := ratelimit.New(cfg.RateLimit)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	keySvc, err := keys.New(st, st, st,
		keys.WithLogger(log),
		keys.WithRateLimiter(limiter))
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	policy, err := auth.NewDefaultPolicy()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	authn := auth.NewBasicAuthenticator(st, auth.WithLogger(log))

	return &Wire{
		Store:   st,
		Keys:    keySvc,
		Limiter: limiter,
		Policy:  policy,
		Server:  relay.NewServer(keySvc, authn, policy, relay.WithServerLogger(log)),
	}, nil
}

// Close releases the store.
func (w *Wire) Close() error {
	return w.Store.Close()
}

func openStore(cfg *Config, log logger.Logger) (store.AccountWriter, error) {
	switch cfg.Storage.Backend {
	case BackendMemory:
		return store.NewMemoryStore(), nil
	case BackendBolt:
		opts := []store.BoltOption{store.WithLogger(log)}
		if cfg.Storage.Passphrase != "" {
			opts = append(opts, store.WithPassphrase(cfg.Storage.Passphrase))
		}
		return store.OpenBoltStore(cfg.Storage.Path, opts...)
	}
	return nil, errors.Errorf("invalid storage.backend %q", cfg.Storage.Backend)
}
