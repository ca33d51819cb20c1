package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/righthand-talent/placement-cli/internal/assign"
	"github.com/righthand-talent/placement-cli/internal/config"
	"github.com/righthand-talent/placement-cli/internal/extract"
	"github.com/righthand-talent/placement-cli/internal/pipeline"
	"github.com/righthand-talent/placement-cli/internal/store"
	"github.com/righthand-talent/placement-cli/pkg/anthropic"
	"github.com/righthand-talent/placement-cli/pkg/apollo"
	"github.com/righthand-talent/placement-cli/pkg/lemlist"
)

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL,
			cfg.Store.Pool.MaxConns, cfg.Store.Pool.MinConns)
	}
}

// initTemporal connects to the Temporal frontend. The SDK logger is left at
// its default; application logging goes through zap.
func initTemporal() (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return nil, eris.Wrap(err, "temporal dial")
	}
	return c, nil
}

// initActivities wires the pipeline stages with their vendor clients,
// collaborators, and the campaign sequence templates.
func initActivities(st store.Store) (*pipeline.Activities, error) {
	seq, err := config.LoadSequence(cfg.Lemlist.SequenceFile)
	if err != nil {
		return nil, err
	}

	anthropicClient := anthropic.NewClient(cfg.Anthropic.Key)

	var oracle assign.Oracle = assign.Comparator{}
	if cfg.Ranking.Oracle == "llm" {
		oracle = assign.NewLLMOracle(anthropicClient, cfg.Anthropic.Model, 1024)
		zap.L().Info("decision-maker ranking via llm oracle", zap.String("model", cfg.Anthropic.Model))
	}

	return &pipeline.Activities{
		Store:     st,
		Documents: pipeline.FileDocumentLoader{Dir: cfg.Pipeline.DocumentsDir},
		Extractor: extract.NewClaudeExtractor(anthropicClient, cfg.Anthropic.Model, 4096),
		Apollo: apollo.NewClient(cfg.Apollo.Key,
			apollo.WithBaseURL(cfg.Apollo.BaseURL),
			apollo.WithRateLimit(cfg.Apollo.RatePerSec, 1),
			apollo.WithEnrichChunkSize(cfg.Pipeline.PeopleChunkSize),
			apollo.WithEnrichConcurrency(cfg.Pipeline.EnrichConcurrency)),
		Lemlist: lemlist.NewClient(cfg.Lemlist.Key,
			lemlist.WithBaseURL(cfg.Lemlist.BaseURL)),
		Oracle:        oracle,
		Sequence:      *seq,
		SearchPerPage: cfg.Apollo.SearchPerPage,
	}, nil
}
