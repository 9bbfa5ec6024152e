package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subguard/internal/logging"
	"subguard/internal/pipeline"
	"subguard/internal/status"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var verdictFlag string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List recorded verdicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			verdict, err := status.ParseVerdict(verdictFlag)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *status.Store) error {
				records, err := store.List(cmd.Context(), status.ListOptions{Verdict: verdict, Limit: limit})
				if err != nil {
					return err
				}
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, struct {
						Stats   status.Stats    `json:"stats"`
						Records []status.Record `json:"records"`
					}{Stats: stats, Records: records})
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No verdicts recorded")
				} else {
					fmt.Fprint(out, renderRecords(records))
				}
				fmt.Fprintf(out, "%d approved, %d rejected\n", stats.Approved, stats.Rejected)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&verdictFlag, "verdict", "", "Only show approved or rejected clips")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of records (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON")
	return cmd
}

func renderRecords(records []status.Record) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.VideoID,
			string(rec.Verdict),
			fmt.Sprintf("%.2f", rec.Confidence),
			rec.DecidedAt.Local().Format(time.DateTime),
			truncate(rec.Reason, 60),
		})
	}
	return renderTable(
		[]string{"Video ID", "Verdict", "Confidence", "Decided", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	) + "\n"
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <video-id>",
		Short: "Show the stored verdict for a clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID := strings.TrimSpace(args[0])
			return ctx.withStore(func(store *status.Store) error {
				rec, err := store.Lookup(cmd.Context(), videoID)
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("no verdict recorded for %s", videoID)
				}
				if jsonOutput {
					return writeJSON(cmd, rec)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Video ID:   %s\n", rec.VideoID)
				fmt.Fprintf(out, "Verdict:    %s\n", rec.Verdict)
				fmt.Fprintf(out, "Subtitles:  %s\n", yesNo(rec.Verdict == status.VerdictRejected))
				fmt.Fprintf(out, "Confidence: %.2f\n", rec.Confidence)
				fmt.Fprintf(out, "Decided:    %s\n", rec.DecidedAt.Local().Format(time.DateTime))
				if rec.Reason != "" {
					fmt.Fprintf(out, "Reason:     %s\n", rec.Reason)
				}
				if rec.Title != "" {
					fmt.Fprintf(out, "Title:      %s\n", rec.Title)
				}
				if rec.URL != "" {
					fmt.Fprintf(out, "URL:        %s\n", rec.URL)
				}
				if rec.FilePath != "" {
					fmt.Fprintf(out, "File:       %s\n", rec.FilePath)
				}
				if source, ok := rec.Metadata["source"].(string); ok {
					fmt.Fprintf(out, "Judged by:  %s\n", source)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the record as JSON")
	return cmd
}

func newForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <video-id>",
		Short: "Delete a stored verdict so the clip is judged again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID := strings.TrimSpace(args[0])
			return ctx.withStore(func(store *status.Store) error {
				removed, err := store.Remove(cmd.Context(), videoID)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "No verdict recorded for %s\n", videoID)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forgot verdict for %s\n", videoID)
				return nil
			})
		},
	}
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete orphaned files from the transform and validation directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			if maxAge <= 0 {
				maxAge = cfg.OrphanMaxAge()
			}
			res := pipeline.SweepOrphans(cmd.Context(), pipeline.OptionsFromConfig(cfg), maxAge,
				logging.NewComponentLogger(logger, "cleanup"))
			out := cmd.OutOrStdout()
			for _, path := range res.Removed {
				fmt.Fprintf(out, "removed %s\n", path)
			}
			for _, m := range res.Abandoned {
				fmt.Fprintf(out, "abandoned job %s for %s\n", m.JobID, m.VideoID)
			}
			for _, e := range res.Errors {
				fmt.Fprintf(out, "error %s: %v\n", e.Path, e.Error)
			}
			fmt.Fprintf(out, "Removed %d files older than %s\n", len(res.Removed), maxAge)
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d files could not be removed", len(res.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Minimum file age to remove (default pipeline.orphan_max_age_hours)")
	return cmd
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
