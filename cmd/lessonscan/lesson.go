package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/a11ywatch/lessonscan"
)

var lessonCmd = &cobra.Command{
	Use:   "lesson <url>",
	Short: "Scan every screen of a lesson until interrupted, then print the summary",
	Long: `lesson opens the page in a visible or headless browser and scans each
screen the learner reaches. Events stream to the configured sinks. On
Ctrl-C (or when the screen budget is spent) the final session is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		done := make(chan struct{}, 1)
		watch := lessonscan.NewCallbackSink(func(_ context.Context, ev lessonscan.Event) error {
			if ev.Type == lessonscan.EventComplete {
				select {
				case done <- struct{}{}:
				default:
				}
			}
			return nil
		})

		r, err := lessonscan.New(cfg, logger, watch)
		if err != nil {
			return err
		}
		defer r.Close(context.Background())
		if err := r.Start(ctx); err != nil {
			return fmt.Errorf("lesson: start browser: %w", err)
		}

		c, err := r.OpenLesson(ctx, args[0])
		if err != nil {
			return err
		}
		if _, err := c.Start(ctx); err != nil {
			return fmt.Errorf("lesson: %w", err)
		}

		select {
		case <-ctx.Done():
		case <-done:
		}

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		snap, err := c.Stop(stopCtx)
		if err != nil {
			return fmt.Errorf("lesson: stop: %w", err)
		}
		return printJSON(snap)
	},
}
