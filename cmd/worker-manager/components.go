// cmd/worker-manager/components.go
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	awsclient "hotspot-selection/internal/common/aws"
	"hotspot-selection/internal/common/config"
	"hotspot-selection/internal/common/database"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/common/observability"
	"hotspot-selection/internal/common/validation"
	"hotspot-selection/internal/pipeline"
	"hotspot-selection/internal/pipeline/classifier"
	"hotspot-selection/internal/pipeline/extractor"
	"hotspot-selection/internal/pipeline/features"
	"hotspot-selection/internal/pipeline/loader"
	"hotspot-selection/internal/pipeline/profiles"
	"hotspot-selection/internal/pipeline/scoring"
	"hotspot-selection/internal/pipeline/storage"
	nbs "hotspot-selection/internal/workers/communication/notify-batch-summary"
	"hotspot-selection/pkg/registry"
)

type components struct {
	pipeline *pipeline.Pipeline
	profiles *profiles.Store
	store    *storage.Store
	index    *storage.ResultIndex
}

func buildComponents(ctx context.Context, cfg *config.Config, pg *database.PostgresClient, es *database.ElasticsearchClient,
	redis *database.RedisClient, obs *observability.Observability, log logger.Logger) (*components, error) {

	loc, err := time.LoadLocation(cfg.Table.Timezone)
	if err != nil {
		return nil, err
	}

	profileStore, err := profiles.NewStore(cfg.Profiles.Path, log)
	if err != nil {
		return nil, fmt.Errorf("platform profiles: %w", err)
	}

	src := loader.New(loader.NewPostgresStore(pg.DB, cfg.Table.Name), &loader.Config{
		PageSize:   cfg.Table.PageSize,
		MaxRetries: cfg.Table.MaxRetries,
		RetryDelay: config.GetDuration(cfg.Table.RetryDelay),
		Location:   loc,
	}, log)

	ext := extractor.New(extractorConfig(cfg.Extraction), nil, log)

	cls := classifier.New(classifierConfig(cfg.Classification), log)

	gen, err := features.NewChatModel(ctx, features.ModelConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     config.GetDuration(cfg.LLM.Timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("chat model: %w", err)
	}

	var cache features.Cache
	if cfg.Features.CacheBackend == "redis" && redis != nil {
		cache = features.NewRedisCache(redis.Client, cfg.Features.CachePrefix)
	}
	analyzer := features.NewProcessor(&features.Config{
		ModelName:      cfg.LLM.Model,
		MaxAttempts:    cfg.Features.MaxAttempts,
		InitialBackoff: config.GetDuration(cfg.Features.InitialBackoff),
		AttemptTimeout: config.GetDuration(cfg.LLM.Timeout),
		BodyRunes:      cfg.Features.BodyRunes,
		SummaryRunes:   cfg.Features.SummaryRunes,
		MaxKeywords:    cfg.Features.MaxKeywords,
		CacheTTL:       config.GetDuration(cfg.Features.CacheTTL),
		Categories:     cls.CategoryNames(),
		RequestsPerMin: cfg.LLM.RequestsPerMin,
		Burst:          cfg.LLM.Burst,
	}, gen, cache, log)

	engine := scoring.New(&scoring.Config{
		AcceptanceThreshold: cfg.Scoring.AcceptanceThreshold,
		AvoidCeiling:        cfg.Scoring.AvoidCeiling,
		DefaultHalfLife:     cfg.Scoring.DefaultHalfLife,
		HalfLives:           cfg.Scoring.HalfLives,
	})

	index := storage.NewResultIndex(es.Client, cfg.Database.Elasticsearch.ResultIndex)
	store := storage.New(storage.NewRepository(pg.DB), index, log)

	p := pipeline.New(&pipeline.Config{
		ExtractionWorkers:   cfg.Pipeline.ExtractionWorkers,
		AnalysisWorkers:     cfg.Pipeline.AnalysisWorkers,
		StorageWorkers:      cfg.Pipeline.StorageWorkers,
		BatchTimeout:        config.GetDuration(cfg.Pipeline.BatchTimeout),
		DefaultLimit:        cfg.Pipeline.DefaultLimit,
		DefaultPlatforms:    cfg.Pipeline.DefaultPlatforms,
		ServeStoredAnalysis: cfg.Pipeline.ServeStoredAnalysis,
	}, pipeline.Dependencies{
		Source:     src,
		Extractor:  ext,
		Analyzer:   analyzer,
		Classifier: cls,
		Engine:     engine,
		Profiles:   profileStore,
		Store:      store,
		Obs:        obs,
	}, log)

	return &components{pipeline: p, profiles: profileStore, store: store, index: index}, nil
}

func extractorConfig(c config.ExtractionConfig) *extractor.Config {
	delays := make(map[string]time.Duration, len(c.HostDelays))
	for host, ms := range c.HostDelays {
		delays[strings.ToLower(host)] = config.GetDuration(ms)
	}
	sites := make(map[string]extractor.Site, len(c.Sites))
	for code, s := range c.Sites {
		sites[code] = extractor.Site{
			Hosts:           s.Hosts,
			Strategy:        s.Strategy,
			TitleSelector:   s.Title,
			ContentSelector: s.Content,
			AuthorSelector:  s.Author,
			Remove:          s.Remove,
			FeedURL:         s.FeedURL,
			UserAgent:       s.UserAgent,
		}
	}
	return &extractor.Config{
		Timeout:      config.GetDuration(c.Timeout),
		MaxBodyBytes: c.MaxBodyBytes,
		MinBodyChars: c.MinBodyChars,
		SummaryChars: c.SummaryChars,
		HostDelay:    config.GetDuration(c.HostDelay),
		HostDelays:   delays,
		UserAgent:    c.UserAgent,
		Sites:        sites,
	}
}

func classifierConfig(c config.ClassificationConfig) *classifier.Config {
	rules := make([]classifier.Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		rules = append(rules, classifier.Rule{
			Name:        r.Name,
			Keywords:    r.Keywords,
			Category:    r.Category,
			SubCategory: r.SubCategory,
			Priority:    r.Priority,
			Confidence:  r.Confidence,
		})
	}
	return &classifier.Config{
		Categories:        c.Categories,
		Rules:             rules,
		PriorityOrder:     strings.ToLower(c.PriorityOrder),
		AgreementBonus:    c.AgreementBonus,
		DisagreePenalty:   c.DisagreePenalty,
		DefaultCategory:   c.DefaultCategory,
		DefaultConfidence: c.DefaultConfidence,
		BodyRunes:         c.BodyRunes,
	}
}

// buildNotifiers returns only the clients of enabled channels so a disabled
// channel stays a nil interface.
func buildNotifiers(ctx context.Context, cfg *config.Config) (nbs.Publisher, nbs.Mailer, error) {
	var (
		publisher nbs.Publisher
		mailer    nbs.Mailer
	)
	region := cfg.Notifications.AWS.Region
	if cfg.Notifications.SNS.Enabled {
		c, err := awsclient.NewSNSClient(ctx, region)
		if err != nil {
			return nil, nil, fmt.Errorf("sns: %w", err)
		}
		publisher = c
	}
	if cfg.Notifications.Email.Enabled {
		c, err := awsclient.NewSESClient(ctx, region)
		if err != nil {
			return nil, nil, fmt.Errorf("ses: %w", err)
		}
		mailer = c
	}
	return publisher, mailer, nil
}

// validatorSet hands out input validators from the activity registry. A task
// type missing from the registry falls back to the handler's built-in schema.
type validatorSet struct {
	reg *registry.ActivityRegistry
	log *zap.Logger
}

func loadValidators(path string, log *zap.Logger) *validatorSet {
	reg, err := registry.LoadRegistry(path)
	if err == nil {
		err = reg.Validate()
	}
	if err != nil {
		log.Warn("activity registry unavailable, using built-in input schemas",
			zap.String("path", path), zap.Error(err))
		return &validatorSet{log: log}
	}
	log.Info("activity registry loaded",
		zap.String("path", path), zap.Int("activities", len(reg.Activities)))
	return &validatorSet{reg: reg, log: log}
}

func (v *validatorSet) For(taskType string) *validation.Schema {
	if v.reg == nil {
		return nil
	}
	schema, err := v.reg.InputValidator(taskType)
	if err != nil {
		v.log.Warn("no registry schema for task type", zap.String("taskType", taskType), zap.Error(err))
		return nil
	}
	return schema
}
