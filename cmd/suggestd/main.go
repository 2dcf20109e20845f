// Command suggestd serves remediation suggestions for lesson scan issues.
//
// Configuration comes from the environment (a .env file in the working
// directory is loaded first):
//
//	PORT                  listen port (default 8000)
//	OPENROUTER_API_KEY    comma-separated keys; enables /api/ai_suggest
//	OPENROUTER_MODEL      model id (default mistral-7b-instruct:free)
//	ADVISOR_API_KEY_HASH  bcrypt hash; when set, X-API-Key is required
//	LOG_LEVEL             debug, info, warn, error
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hazyhaar/a11ywatch/advisor"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("suggestd: .env not loaded", "error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(env("LOG_LEVEL", "info"))}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("suggestd: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg := advisor.Config{Logger: logger}
	if keys := advisor.ParseKeys(os.Getenv("OPENROUTER_API_KEY")); len(keys) > 0 {
		cfg.AI = advisor.NewAIClient(advisor.AIConfig{
			Keys:   keys,
			Model:  os.Getenv("OPENROUTER_MODEL"),
			Logger: logger,
		})
		logger.Info("suggestd: AI suggestions enabled", "keys", len(keys))
	}
	svc := advisor.New(cfg)

	srv := &http.Server{
		Addr: ":" + env("PORT", "8000"),
		Handler: svc.Handler(advisor.HandlerConfig{
			APIKeyHash: []byte(os.Getenv("ADVISOR_API_KEY_HASH")),
			Logger:     logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("suggestd: listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
