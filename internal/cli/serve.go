// SPDX-License-Identifier: AGPL-3.0-only
package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SnowMenchik/Parsr/internal/api/handlers"
	"github.com/SnowMenchik/Parsr/internal/config"
	"github.com/spf13/cobra"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the view collection HTTP API",
	Long:  "serve exposes POST /api/views and the run history over HTTP. Credentials are never prompted for; they come from the credential file or the environment.",
	RunE:  serveAction,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
}

func serveAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}

	provider, err := storedCredentials(cfg)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore(st)

	w := newWorker(cfg, newRunner(cfg, provider, nil), st, true)
	if cfg.Schedule.Duration > 0 {
		w.Start(cfg.Schedule.Duration)
		defer w.Stop()
	}

	// A nil *store.Store must not end up as a non-nil RunStore.
	var h *handlers.Handler
	if st != nil {
		h = handlers.NewHandler(w, st)
	} else {
		h = handlers.NewHandler(w, nil)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API: listening on %s", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("API: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
