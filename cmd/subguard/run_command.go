package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"subguard/internal/config"
	"subguard/internal/logging"
	"subguard/internal/metrics"
	"subguard/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var metricsBind string
	var workers int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run <dir>",
		Short: "Judge every video file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Pipeline.Workers = workers
			}
			if cmd.Flags().Changed("metrics-bind") {
				cfg.Metrics.Bind = strings.TrimSpace(metricsBind)
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runBatch(signalCtx, cmd, cfg, args[0], jsonOutput)
		},
	}
	cmd.Flags().StringVar(&metricsBind, "metrics-bind", "", "Serve Prometheus metrics on this address while the batch runs")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Override pipeline.workers")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print per-clip reports as JSON")
	return cmd
}

func runBatch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, dir string, jsonOutput bool) error {
	lock, err := workflow.AcquireLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("subguard-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr", logPath},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, cfg.Paths.LogDir, "subguard-*.log")

	requests, err := workflow.Discover(dir, cfg.Pipeline.VideoExtensions)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No video files found under %s\n", dir)
		return nil
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.Bind != "" {
		recorder = metrics.New()
	}
	p, store, err := buildPipeline(cfg, recorder, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	if recorder != nil {
		go func() {
			if err := metrics.Serve(runCtx, cfg.Metrics.Bind, recorder, logger); err != nil {
				logging.WarnWithContext(logger, "metrics endpoint unavailable", "metrics_listen_failed",
					logging.String("bind", cfg.Metrics.Bind),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "choose a free address for metrics.bind"),
					logging.String(logging.FieldImpact, "batch continues without metrics"),
				)
			}
		}()
	}

	manager := workflow.NewManager(p, workflow.OptionsFromConfig(cfg), logger)
	go manager.CleanupLoop(runCtx)

	reports := manager.Run(runCtx, requests)
	summary := workflow.Summarize(reports)

	if jsonOutput {
		if err := writeJSON(cmd, batchJSON(reports, summary)); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), renderReports(reports))
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d clips: %d approved, %d rejected (%d cached), %d failed\n",
			summary.Total, summary.Approved, summary.Rejected, summary.Cached, summary.Failed)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return errors.New("some clips were not judged; re-run to retry")
	}
	return nil
}

type reportJSON struct {
	RequestID    string  `json:"request_id"`
	VideoID      string  `json:"video_id"`
	Source       string  `json:"source"`
	State        string  `json:"state"`
	HasSubtitles bool    `json:"has_subtitles"`
	Confidence   float64 `json:"confidence"`
	Reason       string  `json:"reason,omitempty"`
	Cached       bool    `json:"cached"`
	Error        string  `json:"error,omitempty"`
}

func batchJSON(reports []workflow.Report, summary workflow.Summary) any {
	rows := make([]reportJSON, 0, len(reports))
	for _, r := range reports {
		row := reportJSON{
			RequestID:    r.RequestID,
			VideoID:      r.Request.VideoID,
			Source:       r.Request.SourcePath,
			State:        string(r.Outcome.State),
			HasSubtitles: r.Outcome.HasSubtitles,
			Confidence:   r.Outcome.Confidence,
			Reason:       r.Outcome.Reason,
			Cached:       r.Outcome.Cached,
		}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		rows = append(rows, row)
	}
	return struct {
		Summary workflow.Summary `json:"summary"`
		Clips   []reportJSON     `json:"clips"`
	}{Summary: summary, Clips: rows}
}

func renderReports(reports []workflow.Report) string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		detail := r.Outcome.Reason
		if r.Err != nil {
			detail = r.Err.Error()
		}
		state := string(r.Outcome.State)
		if r.Outcome.Cached {
			state += " (cached)"
		}
		confidence := ""
		if r.Err == nil {
			confidence = fmt.Sprintf("%.2f", r.Outcome.Confidence)
		}
		rows = append(rows, []string{r.Request.VideoID, state, confidence, truncate(detail, 60)})
	}
	return renderTable(
		[]string{"Video ID", "Verdict", "Confidence", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	) + "\n"
}
