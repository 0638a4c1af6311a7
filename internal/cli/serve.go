package cli

import (
	"context"
	"net/http"
	"time"

	"McpAgent/internal/api"
	"McpAgent/internal/auth"
	"McpAgent/internal/logger"

	"github.com/cockroachdb/errors"
)

func (s *ServeCmd) run(ctx context.Context, opts *Options) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if s.Connect {
		result, err := a.engine.ConnectAll(ctx)
		if err != nil {
			return err
		}
		if failed := result.Failed(); len(failed) > 0 {
			logger.Warn("Failed to connect to %v", failed)
		}
	}

	addr := s.Addr
	if addr == "" {
		addr = a.cfg.Server.GetServerAddr()
	}

	handler := api.NewHandler(a.engine, auth.NewAuthMiddleware(&a.cfg.Auth))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown")
	}
	return <-errCh
}
