package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/matheuscscp/fleet-issuer/internal/issuer"
	"github.com/matheuscscp/fleet-issuer/internal/server"
)

const shutdownTimeout = 30 * time.Second

func serveCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the JWKS and OpenID discovery endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conf, st, iss, err := setup(ctx, o, issuer.WithRegisterer(prometheus.DefaultRegisterer))
			if err != nil {
				return err
			}
			defer shutdown(ctx, iss, st)

			srv := server.New(conf, iss)
			l := logrus.WithField("addr", srv.Addr)

			errCh := make(chan error, 1)
			go func() {
				l.Info("server started")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("failed to serve: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			l.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down server: %w", err)
			}
			return nil
		},
	}
}
