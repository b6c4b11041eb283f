package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/goliatone/go-credential-broker/api"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the meetings and messaging HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			settings := a.file.Server
			if addr != "" {
				settings.Addr = addr
			}
			server := &http.Server{
				Addr:         settings.Addr,
				Handler:      newRouter(api.NewHandler(a.broker, a.logger)),
				ReadTimeout:  settings.ReadTimeout,
				WriteTimeout: settings.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("http server listening", "addr", settings.Addr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
			defer cancel()
			a.logger.Info("http server shutting down")
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func newRouter(handler *api.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Mount("/v1", handler.Routes())
	return r
}
