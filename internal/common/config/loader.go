// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// Enable ENV override like LLM_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finalize(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finalize(v)
}

func finalize(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env", // tests in test/e2e/
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if val := os.Getenv("LLM_API_KEY"); val != "" {
			cfg.LLM.APIKey = val
		}
	}
	if cfg.LLM.BaseURL == "" {
		if val := os.Getenv("LLM_BASE_URL"); val != "" {
			cfg.LLM.BaseURL = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Notifications.SNS.TopicARN == "" {
		if val := os.Getenv("SNS_TOPIC_ARN"); val != "" {
			cfg.Notifications.SNS.TopicARN = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.HTTPPort == 0 {
		cfg.App.HTTPPort = 8080
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}
	if cfg.Database.Elasticsearch.ResultIndex == "" {
		cfg.Database.Elasticsearch.ResultIndex = "hotspot-suitability"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60000
	}
	if cfg.LLM.RequestsPerMin == 0 {
		cfg.LLM.RequestsPerMin = 60
	}
	if cfg.LLM.Burst == 0 {
		cfg.LLM.Burst = 1
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}

	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 15000
	}
	if cfg.Extraction.MaxBodyBytes == 0 {
		cfg.Extraction.MaxBodyBytes = 5 << 20
	}
	if cfg.Extraction.MinBodyChars == 0 {
		cfg.Extraction.MinBodyChars = 200
	}
	if cfg.Extraction.SummaryChars == 0 {
		cfg.Extraction.SummaryChars = 200
	}
	if cfg.Extraction.HostDelay == 0 {
		cfg.Extraction.HostDelay = 1000
	}

	if cfg.Features.MaxAttempts == 0 {
		cfg.Features.MaxAttempts = 3
	}
	if cfg.Features.InitialBackoff == 0 {
		cfg.Features.InitialBackoff = 100
	}
	if cfg.Features.BodyRunes == 0 {
		cfg.Features.BodyRunes = 2000
	}
	if cfg.Features.SummaryRunes == 0 {
		cfg.Features.SummaryRunes = 200
	}
	if cfg.Features.MaxKeywords == 0 {
		cfg.Features.MaxKeywords = 10
	}
	if cfg.Features.CacheTTL == 0 {
		cfg.Features.CacheTTL = 24 * 60 * 60 * 1000
	}
	if cfg.Features.CacheBackend == "" {
		cfg.Features.CacheBackend = "redis"
	}
	if cfg.Features.CachePrefix == "" {
		cfg.Features.CachePrefix = "hotspot:features:"
	}

	if cfg.Classification.PriorityOrder == "" {
		cfg.Classification.PriorityOrder = "asc"
	}
	if cfg.Classification.AgreementBonus == 0 {
		cfg.Classification.AgreementBonus = 0.1
	}
	if cfg.Classification.DisagreePenalty == 0 {
		cfg.Classification.DisagreePenalty = 0.2
	}
	if cfg.Classification.DefaultCategory == "" {
		cfg.Classification.DefaultCategory = "其他"
	}
	if cfg.Classification.DefaultConfidence == 0 {
		cfg.Classification.DefaultConfidence = 0.3
	}
	if cfg.Classification.BodyRunes == 0 {
		cfg.Classification.BodyRunes = 500
	}

	if cfg.Scoring.AcceptanceThreshold == 0 {
		cfg.Scoring.AcceptanceThreshold = 0.6
	}
	if cfg.Scoring.AvoidCeiling == 0 {
		cfg.Scoring.AvoidCeiling = 0.1
	}
	if cfg.Scoring.DefaultHalfLife == 0 {
		cfg.Scoring.DefaultHalfLife = 6
	}

	if cfg.Pipeline.ExtractionWorkers == 0 {
		cfg.Pipeline.ExtractionWorkers = 8
	}
	if cfg.Pipeline.AnalysisWorkers == 0 {
		cfg.Pipeline.AnalysisWorkers = 3
	}
	if cfg.Pipeline.StorageWorkers == 0 {
		cfg.Pipeline.StorageWorkers = 4
	}
	if cfg.Pipeline.BatchTimeout == 0 {
		cfg.Pipeline.BatchTimeout = 10 * 60 * 1000
	}
	if cfg.Pipeline.DefaultLimit == 0 {
		cfg.Pipeline.DefaultLimit = 50
	}

	if cfg.Profiles.Path == "" {
		cfg.Profiles.Path = "configs/platforms.yaml"
	}

	if cfg.Table.Name == "" {
		cfg.Table.Name = "hotspots"
	}
	if cfg.Table.PageSize == 0 {
		cfg.Table.PageSize = 100
	}
	if cfg.Table.MaxRetries == 0 {
		cfg.Table.MaxRetries = 3
	}
	if cfg.Table.RetryDelay == 0 {
		cfg.Table.RetryDelay = 500
	}
	if cfg.Table.Timezone == "" {
		cfg.Table.Timezone = "Asia/Shanghai"
	}

	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "configs/activity-registry.json"
	}

	if cfg.Observability.SampleRatio == 0 {
		cfg.Observability.SampleRatio = 1.0
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if len(cfg.Database.Elasticsearch.Addresses) == 0 && cfg.Database.Elasticsearch.URL == "" {
		return fmt.Errorf("database.elasticsearch.addresses or url is required")
	}

	if cfg.Features.CacheBackend == "redis" && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required for the redis feature cache")
	}
	if cfg.Features.CacheBackend != "redis" && cfg.Features.CacheBackend != "memory" {
		return fmt.Errorf("features.cache_backend must be redis or memory, got %q", cfg.Features.CacheBackend)
	}

	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}

	order := strings.ToLower(cfg.Classification.PriorityOrder)
	if order != "asc" && order != "desc" {
		return fmt.Errorf("classification.priority_order must be asc or desc, got %q", cfg.Classification.PriorityOrder)
	}

	if cfg.Pipeline.ExtractionWorkers < cfg.Pipeline.AnalysisWorkers {
		return fmt.Errorf("pipeline.extraction_workers (%d) must not be smaller than pipeline.analysis_workers (%d)",
			cfg.Pipeline.ExtractionWorkers, cfg.Pipeline.AnalysisWorkers)
	}

	if cfg.Scoring.AcceptanceThreshold < 0 || cfg.Scoring.AcceptanceThreshold > 1 {
		return fmt.Errorf("scoring.acceptance_threshold must be within [0,1]")
	}

	if _, err := time.LoadLocation(cfg.Table.Timezone); err != nil {
		return fmt.Errorf("table.timezone %q: %w", cfg.Table.Timezone, err)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
