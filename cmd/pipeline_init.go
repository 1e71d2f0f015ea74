package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listings-cli/internal/dedupe"
	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/internal/store"
	"github.com/sells-group/listings-cli/internal/verify"
	"github.com/sells-group/listings-cli/pkg/registry"
)

// pipelineEnv holds the initialized store, registry matcher, and pipeline
// shared by the verify/sweep/serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *verify.Pipeline
	Job      *model.JobState
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline opens the store, builds the registry client and matcher
// from config, and wires the pipeline. Callers should defer env.Close().
// Without a registry API key the pipeline runs without verification.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("cmd: store.database_url is required")
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	var matcher verify.Matcher
	if cfg.Registry.APIKey != "" {
		client := registry.NewClient(cfg.Registry.APIKey,
			registry.WithBaseURL(cfg.Registry.BaseURL),
			registry.WithQuota(cfg.Registry.QuotaCalls, time.Duration(cfg.Registry.QuotaPeriodSecs)*time.Second),
			registry.WithCooldown(time.Duration(cfg.Registry.CooldownSecs)*time.Second),
		)
		matcher = registry.NewMatcher(client, registry.MatcherConfig{
			MatchThreshold: cfg.Registry.MatchThreshold,
			SearchPageSize: cfg.Registry.SearchPageSize,
		})
	}

	job := model.NewJobState()
	pipeline := verify.New(
		dedupe.New(cfg.Dedupe.DuplicateThreshold),
		matcher,
		st,
		job,
		verify.Options{
			VerifyDelay: time.Duration(cfg.Registry.VerifyDelayMs) * time.Millisecond,
			SweepDelay:  time.Duration(cfg.Registry.SweepDelayMs) * time.Millisecond,
		},
	)

	return &pipelineEnv{Store: st, Pipeline: pipeline, Job: job}, nil
}
