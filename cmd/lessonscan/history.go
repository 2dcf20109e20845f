package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/a11ywatch/lessonscan"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List completed lesson sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Sinks = nil
		r, err := lessonscan.New(cfg, newLogger())
		if err != nil {
			return err
		}
		defer r.Close(context.Background())

		recs, err := r.History().List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if recs == nil {
			recs = []lessonscan.HistoryRecord{}
		}
		return printJSON(recs)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum sessions listed")
}
