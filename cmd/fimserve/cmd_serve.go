package main

import (
	"context"
	"errors"
	"net/http"

	httpadapter "github.com/couchcryptid/fimserve-service/internal/adapter/http"
	"github.com/spf13/cobra"
)

func newServeCmd(get appFunc) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and the benchmark API until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			logger := a.logger
			srv := httpadapter.NewServer(addr, a.service, a.service, logger)
			ctx := cmd.Context()

			// Warm the catalog so /readyz turns green without waiting for a request.
			go func() {
				if err := a.service.LoadCatalog(ctx); err != nil && ctx.Err() == nil {
					logger.Warn("initial catalog load failed", "error", err)
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $HTTP_ADDR)")
	return cmd
}
