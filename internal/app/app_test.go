package app_test

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"prekeyd/internal/app"
	"prekeyd/internal/domain"
	"prekeyd/internal/logger"
	"prekeyd/internal/relay"
	"prekeyd/internal/store"
	"prekeyd/internal/store/storetest"
)

// Ensure that a wired bolt-backed server seeds its accounts and answers key
// requests until its context is cancelled.
func TestServeSeededBolt(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.json")
	require.NoError(t, store.SaveSeed(seedPath, storetest.Seed()))

	config := app.NewDefaultConfig()
	config.Storage.Backend = app.BackendBolt
	config.Storage.Path = filepath.Join(dir, "prekeyd.db")
	config.SeedFile = seedPath

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logger.NewDiscard()
	w, err := app.NewWire(ctx, config, log)
	require.NoError(t, err)
	defer w.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- app.New(config, w, log).Serve(ctx, ln) }()

	c := relay.NewClient("http://"+ln.Addr().String(),
		relay.WithBasicAuth(storetest.CallerNumber, storetest.Password))
	bundle, err := c.FetchBundle(ctx, domain.NumberIdentifier(storetest.ExistsNumber), domain.SingleDevice(2))
	require.NoError(t, err)
	require.Equal(t, uint32(5667), bundle.Devices[0].PreKey.KeyID)

	cancel()
	require.NoError(t, <-done)
}

func TestNewWireBadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, store.SaveSeed(path, store.Seed{Accounts: []store.SeedAccount{{}}}))

	config := app.NewDefaultConfig()
	config.SeedFile = path
	_, err := app.NewWire(context.Background(), config, logger.NewDiscard())
	require.Error(t, err)
}
