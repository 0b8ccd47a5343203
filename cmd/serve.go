package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"foresight/internal/api"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}
		router, err := api.NewRouter(a.handler, api.RouterOptions{AllowedOrigins: cfg.BasicConfig.AllowedOrigins})
		if err != nil {
			return err
		}

		go func() {
			if err := a.hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("session change subscriber stopped")
			}
		}()

		srv := newHTTPServer(ctx, cfg.BasicConfig.ServerAddress, router)
		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", srv.Addr).Str("object_store", cfg.ObjectStore.Driver).Msg("foresight listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// newHTTPServer ties request contexts to ctx, so open event streams end
// when shutdown starts instead of holding it until the timeout.
func newHTTPServer(ctx context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
