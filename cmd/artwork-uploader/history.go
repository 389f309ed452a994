package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/artwork-uploader/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent upload runs from the history catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.History.PostgresDSN == "" {
			return fmt.Errorf("history.postgres_dsn is not configured")
		}

		w, err := history.NewWriter(cfg.History)
		if err != nil {
			return err
		}
		defer w.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		runs, err := w.RecentRuns(ctx, historyLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tBATCHES\tUPLOADED\tFAILED\tSTATUS")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
				r.RunID,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
				r.Batches,
				r.FilesUploaded,
				r.FilesFailed,
				runStatus(r),
			)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
}

func runStatus(r history.RunRecord) string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.AnyFailed:
		return "failed"
	default:
		return "ok"
	}
}
