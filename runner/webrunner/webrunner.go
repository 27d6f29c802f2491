// Package webrunner serves the functions from a long-running HTTP server.
package webrunner

import (
	"context"
	"fmt"

	"github.com/gosom/invoice-reminder/runner"
	"github.com/gosom/invoice-reminder/web"
)

type webrunner struct {
	app  *runner.App
	addr string
}

func New(ctx context.Context, cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeWeb {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	app, err := runner.NewApp(ctx, &cfg.App)
	if err != nil {
		return nil, err
	}

	return &webrunner{app: app, addr: cfg.Addr}, nil
}

func (w *webrunner) Run(ctx context.Context) error {
	return web.Start(ctx, web.Config{
		Addr:    w.addr,
		Handler: w.app.Handler,
		Logger:  w.app.Logger,
	})
}

func (w *webrunner) Close(ctx context.Context) error {
	return w.app.Close(ctx)
}
