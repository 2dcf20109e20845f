package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/a11ywatch/lessonscan"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve <url>",
	Short: "Attach to a lesson and expose the control API over HTTP and MCP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.HTTP.Addr = serveAddr
		}

		r, err := lessonscan.New(cfg, logger)
		if err != nil {
			return err
		}
		defer r.Close(context.Background())
		if err := r.Start(ctx); err != nil {
			return fmt.Errorf("serve: start browser: %w", err)
		}

		c, err := r.OpenLesson(ctx, args[0])
		if err != nil {
			return err
		}
		mcpSrv, err := lessonscan.NewMCPServer(c, version)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr: cfg.HTTP.Addr,
			Handler: c.Handler(lessonscan.HandlerConfig{
				Hub:         r.Hub(),
				EventBuffer: cfg.HTTP.EventBuffer,
				MCP:         mcpSrv,
				Logger:      logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("lessonscan: listening", "addr", cfg.HTTP.Addr, "lesson", args[0])
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.WriteTimeout)
		defer cancel()
		if err := c.Close(shutdownCtx); err != nil {
			logger.Warn("lessonscan: close session", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http.addr)")
}
