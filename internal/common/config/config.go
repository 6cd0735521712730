// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App            AppConfig               `mapstructure:"app"`
	Camunda        CamundaConfig           `mapstructure:"camunda"`
	Database       DatabaseConfig          `mapstructure:"database"`
	Workers        map[string]WorkerConfig `mapstructure:"workers"`
	LLM            LLMConfig               `mapstructure:"llm"`
	Extraction     ExtractionConfig        `mapstructure:"extraction"`
	Features       FeaturesConfig          `mapstructure:"features"`
	Classification ClassificationConfig    `mapstructure:"classification"`
	Scoring        ScoringConfig           `mapstructure:"scoring"`
	Pipeline       PipelineConfig          `mapstructure:"pipeline"`
	Profiles       ProfilesConfig          `mapstructure:"profiles"`
	Table          TableConfig             `mapstructure:"table"`
	Registry       RegistryConfig          `mapstructure:"registry"`
	Notifications  NotificationConfig      `mapstructure:"notifications"`
	Logging        LoggingConfig           `mapstructure:"logging"`
	Observability  ObservabilityConfig     `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPPort    int    `mapstructure:"http_port"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	SSLEnabled  bool     `mapstructure:"ssl_enabled"`
	URL         string   `mapstructure:"url"` // Single URL for backwards compatibility
	ResultIndex string   `mapstructure:"result_index"`
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Pipeline Configuration Sections ---

// LLMConfig configures the OpenAI-compatible chat backend.
type LLMConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Timeout        int     `mapstructure:"timeout"` // milliseconds, per attempt
	RequestsPerMin int     `mapstructure:"requests_per_minute"`
	Burst          int     `mapstructure:"burst"`
}

type SiteConfig struct {
	Hosts     []string `mapstructure:"hosts"`
	Strategy  string   `mapstructure:"strategy"`
	Title     string   `mapstructure:"title"`
	Content   string   `mapstructure:"content"`
	Author    string   `mapstructure:"author"`
	Remove    []string `mapstructure:"remove"`
	FeedURL   string   `mapstructure:"feed_url"`
	UserAgent string   `mapstructure:"user_agent"`
}

type ExtractionConfig struct {
	Timeout      int                   `mapstructure:"timeout"`        // milliseconds
	MaxBodyBytes int64                 `mapstructure:"max_body_bytes"` // response cap
	MinBodyChars int                   `mapstructure:"min_body_chars"`
	SummaryChars int                   `mapstructure:"summary_chars"`
	HostDelay    int                   `mapstructure:"host_delay"` // milliseconds between requests to one host
	HostDelays   map[string]int        `mapstructure:"host_delays"`
	UserAgent    string                `mapstructure:"user_agent"`
	Sites        map[string]SiteConfig `mapstructure:"sites"`
}

type FeaturesConfig struct {
	MaxAttempts    int    `mapstructure:"max_attempts"`
	InitialBackoff int    `mapstructure:"initial_backoff"` // milliseconds
	BodyRunes      int    `mapstructure:"body_runes"`
	SummaryRunes   int    `mapstructure:"summary_runes"`
	MaxKeywords    int    `mapstructure:"max_keywords"`
	CacheTTL       int    `mapstructure:"cache_ttl"` // milliseconds
	CacheBackend   string `mapstructure:"cache_backend"`
	CachePrefix    string `mapstructure:"cache_prefix"`
}

type ClassificationRule struct {
	Name        string   `mapstructure:"name"`
	Keywords    []string `mapstructure:"keywords"`
	Category    string   `mapstructure:"category"`
	SubCategory string   `mapstructure:"sub_category"`
	Priority    int      `mapstructure:"priority"`
	Confidence  float64  `mapstructure:"confidence"`
}

type ClassificationConfig struct {
	Categories        map[string][]string  `mapstructure:"categories"`
	Rules             []ClassificationRule `mapstructure:"rules"`
	PriorityOrder     string               `mapstructure:"priority_order"` // asc or desc
	AgreementBonus    float64              `mapstructure:"agreement_bonus"`
	DisagreePenalty   float64              `mapstructure:"disagreement_penalty"`
	DefaultCategory   string               `mapstructure:"default_category"`
	DefaultConfidence float64              `mapstructure:"default_confidence"`
	BodyRunes         int                  `mapstructure:"body_runes"`
}

type ScoringConfig struct {
	AcceptanceThreshold float64            `mapstructure:"acceptance_threshold"`
	AvoidCeiling        float64            `mapstructure:"avoid_ceiling"`
	DefaultHalfLife     float64            `mapstructure:"default_half_life_hours"`
	HalfLives           map[string]float64 `mapstructure:"half_life_hours"`
}

type PipelineConfig struct {
	ExtractionWorkers   int      `mapstructure:"extraction_workers"`
	AnalysisWorkers     int      `mapstructure:"analysis_workers"`
	StorageWorkers      int      `mapstructure:"storage_workers"`
	BatchTimeout        int      `mapstructure:"batch_timeout"` // milliseconds
	DefaultLimit        int      `mapstructure:"default_limit"`
	DefaultPlatforms    []string `mapstructure:"default_platforms"`
	ServeStoredAnalysis bool     `mapstructure:"serve_stored_analysis"`
}

type ProfilesConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

type TableConfig struct {
	Name       string `mapstructure:"name"`
	PageSize   int    `mapstructure:"page_size"`
	MaxRetries int    `mapstructure:"max_retries"`
	RetryDelay int    `mapstructure:"retry_delay"` // milliseconds
	Timezone   string `mapstructure:"timezone"`
}

type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// NotificationConfig holds settings for the notify-batch-summary worker.
type NotificationConfig struct {
	Email struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		To        []string `mapstructure:"to"`
	} `mapstructure:"email"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type ObservabilityConfig struct {
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}
