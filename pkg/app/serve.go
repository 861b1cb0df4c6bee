package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"carecart/pkg/config"
)

func serve(ctx context.Context, opts *options) error {
	cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.Server.Domain != "" {
		logger.Info("starting HTTPS servers", zap.String("domain", cfg.Server.Domain))
		return runDomainServers(ctx, cfg, rt.API.Handler(), logger)
	}

	server := newHTTPServer(cfg, ":"+strconv.Itoa(cfg.Server.Port), rt.API.Handler())
	logger.Info("carecart is running",
		zap.String("addr", server.Addr),
		zap.String("storage", cfg.Storage.Backend))
	return runServers(ctx, cfg.GetShutdownTimeout(), logger, func() error {
		return server.ListenAndServe()
	}, server)
}

func newHTTPServer(cfg *config.Config, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}
}

// runServers runs listen until it fails or ctx ends, then shuts every server down within
// the timeout.
func runServers(ctx context.Context, timeout time.Duration, logger *zap.Logger, listen func() error, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		logger.Info("servers stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}

// runDomainServers serves HTTPS with an in-memory self-signed certificate and redirects plain
// HTTP to it.
func runDomainServers(ctx context.Context, cfg *config.Config, handler http.Handler, logger *zap.Logger) error {
	domain := cfg.Server.Domain
	httpsServer := newHTTPServer(cfg, ":443", handler)
	httpsServer.TLSConfig = newSelfSignedIssuer(domain).TLSConfig()

	httpRedirect := &http.Server{
		Addr:    ":80",
		Handler: redirectHandler(domain),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP redirect server listening", zap.String("addr", httpRedirect.Addr))
		if err := httpRedirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("redirect server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("HTTPS server is starting with a self-signed certificate", zap.String("domain", domain))
		return runServers(gctx, cfg.GetShutdownTimeout(), logger, func() error {
			return httpsServer.ListenAndServeTLS("", "")
		}, httpsServer, httpRedirect)
	})
	return g.Wait()
}

func redirectHandler(domain string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := "https://" + domain + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
}
