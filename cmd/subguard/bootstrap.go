package main

import (
	"fmt"
	"log/slog"

	"subguard/internal/classify"
	"subguard/internal/config"
	"subguard/internal/engine"
	"subguard/internal/ensemble"
	"subguard/internal/metrics"
	"subguard/internal/pipeline"
	"subguard/internal/status"
	"subguard/internal/transcode"
)

// buildJudge returns the ensemble judge when engines are configured and the
// single track classifier otherwise.
func buildJudge(cfg *config.Config, recorder *metrics.Recorder, logger *slog.Logger) (pipeline.Judge, error) {
	if len(cfg.Ensemble.Engines) == 0 {
		track, err := engine.NewTrackEngineFromConfig(cfg, logger)
		if err != nil {
			return nil, err
		}
		return pipeline.ClassifierJudge(track), nil
	}
	registry, err := engine.BuildRegistry(cfg, engine.DefaultBuilder, logger)
	if err != nil {
		return nil, err
	}
	strategy, err := ensemble.ParseStrategy(cfg.Ensemble.Strategy)
	if err != nil {
		return nil, err
	}
	opts := ensemble.Options{
		Strategy:          strategy,
		ConflictThreshold: cfg.Ensemble.ConflictThreshold,
		Parallelism:       cfg.Ensemble.Parallelism,
		DefaultTimeout:    cfg.DetectTimeout(),
	}
	if recorder != nil {
		opts.Observer = recorder
	}
	voter, err := ensemble.NewVoter(registry, opts, logger)
	if err != nil {
		return nil, err
	}
	return pipeline.EnsembleJudge(voter), nil
}

// buildPipeline opens the status store and assembles the pipeline. The
// caller closes the returned store.
func buildPipeline(cfg *config.Config, recorder *metrics.Recorder, logger *slog.Logger) (*pipeline.Pipeline, *status.Store, error) {
	transcoder, err := transcode.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	judge, err := buildJudge(cfg, recorder, logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := status.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open status store: %w", err)
	}
	deps := pipeline.Deps{
		Store:      store,
		Transcoder: transcoder,
		Judge:      judge,
		Logger:     logger,
	}
	if recorder != nil {
		deps.Recorder = recorder
	}
	p, err := pipeline.New(pipeline.OptionsFromConfig(cfg), deps)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return p, store, nil
}

func classifierFromConfig(cfg *config.Config) (classify.Classifier, error) {
	return classify.New(classify.OptionsFromConfig(cfg.Classifier))
}
