package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/a11ywatch/lessonscan"
)

var scanStatic bool

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Audit a single page and print its issues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if scanStatic {
			client := &http.Client{Timeout: cfg.Browser.NavTimeout}
			sc, err := lessonscan.ScanStatic(ctx, args[0], client, cfg.Budget.MaxIssuesPerScreen)
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			return printJSON(sc)
		}

		cfg.Sinks = nil
		r, err := lessonscan.New(cfg, logger)
		if err != nil {
			return err
		}
		defer r.Close(ctx)
		if err := r.Start(ctx); err != nil {
			return fmt.Errorf("scan: start browser: %w", err)
		}
		sc, err := r.ScanPage(ctx, args[0])
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		return printJSON(sc)
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanStatic, "static", false, "fetch over HTTP and run the static rule set, no browser")
}
