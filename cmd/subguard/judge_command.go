package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"subguard/internal/classify"
	"subguard/internal/engine"
	"subguard/internal/logging"
	"subguard/internal/pipeline"
	"subguard/internal/textrack"
)

func newJudgeCommand(ctx *commandContext) *cobra.Command {
	var title string
	var url string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "judge <video-id> <path>",
		Short: "Run one clip through the pipeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			p, store, err := buildPipeline(cfg, nil, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			out, err := p.Process(signalCtx, pipeline.Request{
				VideoID:    strings.TrimSpace(args[0]),
				SourcePath: args[1],
				Title:      title,
				URL:        url,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Describe())
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Title stored with the verdict")
	cmd.Flags().StringVar(&url, "url", "", "Source URL stored with the verdict")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the outcome as JSON")
	return cmd
}

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <detections.json>",
		Short: "Classify recorded per-frame text detections",
		Long: "Reads a JSON array with one array of detections per sampled frame, runs the\n" +
			"tracker and the configured classifier, and prints the result. Nothing is\n" +
			"written to the status store.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read detections: %w", err)
			}
			var perFrame [][]textrack.Detection
			if err := json.Unmarshal(data, &perFrame); err != nil {
				return fmt.Errorf("decode detections: %w", err)
			}
			classifier, err := classifierFromConfig(cfg)
			if err != nil {
				return err
			}
			result, stats := engine.Judge(perFrame, engine.TrackerConfig(cfg.Tracker), classifier, logging.NewNop())
			return writeJSON(cmd, struct {
				Result classify.Result   `json:"result"`
				Stats  engine.JudgeStats `json:"stats"`
			}{Result: result, Stats: stats})
		},
	}
	return cmd
}
