// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package http runs the optional HTTP endpoint of a print station.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/z5labs/printq/app"
	"github.com/z5labs/printq/config"

	"github.com/sourcegraph/conc/pool"
)

// DefaultAddr is listened on when no address is configured.
const DefaultAddr = ":8080"

// TCPListener listens on Addr when read.
type TCPListener struct {
	Addr config.Reader[string]
}

// Read implements the [config.Reader] interface.
func (tcpLn TCPListener) Read(ctx context.Context) (config.Value[net.Listener], error) {
	addr := config.MustOr(ctx, DefaultAddr, tcpLn.Addr)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return config.Value[net.Listener]{}, err
	}
	return config.ValueOf(ln), nil
}

// Server configures the underlying [http.Server].
type Server struct {
	Listener          config.Reader[net.Listener]
	ReadHeaderTimeout config.Reader[time.Duration]
	WriteTimeout      config.Reader[time.Duration]
	IdleTimeout       config.Reader[time.Duration]

	// ErrorLog receives errors from accepting connections and from handlers.
	ErrorLog *slog.Logger
}

// App is a running HTTP server.
type App struct {
	ls  net.Listener
	srv *http.Server
}

// Run serves until ctx is cancelled and then shuts the server down
// gracefully. A clean shutdown is not reported as an error.
func (a App) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx)

	p.Go(func(ctx context.Context) error {
		return a.srv.Serve(a.ls)
	})

	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return a.srv.Shutdown(context.Background())
	})

	err := p.Wait()
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the address the server listens on.
func (a App) Addr() net.Addr {
	return a.ls.Addr()
}

// Build returns a builder serving the handler built by b.
//
// Defaults:
//   - ReadHeaderTimeout: 2 seconds
//   - WriteTimeout: 10 seconds
//   - IdleTimeout: 120 seconds
func Build(srv Server, b app.Builder[http.Handler]) app.Builder[App] {
	return app.Bind(b, func(h http.Handler) app.Builder[App] {
		return app.BuilderFunc[App](func(ctx context.Context) (App, error) {
			ln, err := config.Read(ctx, srv.Listener)
			if err != nil {
				return App{}, err
			}

			errLog := srv.ErrorLog
			if errLog == nil {
				errLog = slog.New(slog.DiscardHandler)
			}

			httpServer := &http.Server{
				Handler:           h,
				ReadHeaderTimeout: config.MustOr(ctx, 2*time.Second, srv.ReadHeaderTimeout),
				WriteTimeout:      config.MustOr(ctx, 10*time.Second, srv.WriteTimeout),
				IdleTimeout:       config.MustOr(ctx, 120*time.Second, srv.IdleTimeout),
				ErrorLog:          slog.NewLogLogger(errLog.Handler(), slog.LevelError),
			}

			return App{ls: ln, srv: httpServer}, nil
		})
	})
}
