// Command lessonscan audits lesson pages for accessibility and UI/UX issues.
//
// Usage:
//
//	lessonscan scan https://lms.example/lesson/1            # one page, browser
//	lessonscan scan --static https://lms.example/lesson/1   # one page, no browser
//	lessonscan lesson https://lms.example/lesson/1          # scan until Ctrl-C
//	lessonscan serve https://lms.example/lesson/1           # HTTP + MCP control API
//	lessonscan history --limit 10
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/a11ywatch/lessonscan"
)

var version = "dev"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "lessonscan",
	Short:         "lessonscan audits every screen of an interactive lesson",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to lessonscan.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.Version = version

	rootCmd.AddCommand(scanCmd, lessonCmd, serveCmd, historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		newLogger().Error("lessonscan: fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*lessonscan.Config, error) {
	if configPath == "" {
		return lessonscan.DefaultConfig(), nil
	}
	return lessonscan.LoadConfigFile(configPath)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
