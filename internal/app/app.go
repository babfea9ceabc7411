package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/hako/durafmt"
	"github.com/pkg/errors"

	"prekeyd/internal/logger"
)

// App runs the HTTP server of a Wire until its context ends.
type App struct {
	cfg  *Config
	wire *Wire
	log  logger.Logger
}

// New returns an App serving w with the settings in cfg.
func New(cfg *Config, w *Wire, log logger.Logger) *App {
	return &App{cfg: cfg, wire: w, log: log}
}

// Run listens on the configured address and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", a.cfg.Listen)
	}
	return a.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      a.wire.Server,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
	}
	start := time.Now()
	a.log.Infof("prekeyd listening on %s", ln.Addr())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	a.log.Infof("prekeyd stopped after %s", durafmt.Parse(time.Since(start)).LimitFirstN(2))
	return nil
}
