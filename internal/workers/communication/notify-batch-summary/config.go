// internal/workers/communication/notify-batch-summary/config.go
package notifybatchsummary

import (
	"fmt"
	"time"

	"hotspot-selection/internal/common/config"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	EmailEnabled  bool          `mapstructure:"email_enabled"`
	FromEmail     string        `mapstructure:"from_email"`
	To            []string      `mapstructure:"to"`
	SNSEnabled    bool          `mapstructure:"sns_enabled"`
	TopicARN      string        `mapstructure:"topic_arn"`
	MaxItems      int           `mapstructure:"max_items"`
	Location      *time.Location
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 2,
		Timeout:       30 * time.Second,
		MaxItems:      10,
		Location:      time.UTC,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if !c.EmailEnabled && !c.SNSEnabled {
		return fmt.Errorf("at least one notification channel must be enabled")
	}
	if c.EmailEnabled {
		if c.FromEmail == "" {
			return fmt.Errorf("from_email is required when email is enabled")
		}
		if len(c.To) == 0 {
			return fmt.Errorf("at least one recipient is required when email is enabled")
		}
	}
	if c.SNSEnabled && c.TopicARN == "" {
		return fmt.Errorf("topic_arn is required when sns is enabled")
	}
	return nil
}

func createConfigFromAppConfig(appConfig *config.Config, customConfig *Config) *Config {
	if customConfig != nil {
		return customConfig
	}

	cfg := DefaultConfig()
	if appConfig == nil {
		return cfg
	}

	n := appConfig.Notifications
	cfg.EmailEnabled = n.Email.Enabled
	cfg.FromEmail = n.Email.FromEmail
	cfg.To = n.Email.To
	cfg.SNSEnabled = n.SNS.Enabled
	cfg.TopicARN = n.SNS.TopicARN

	if appConfig.Table.Timezone != "" {
		if loc, err := time.LoadLocation(appConfig.Table.Timezone); err == nil {
			cfg.Location = loc
		}
	}
	if workerCfg, exists := appConfig.Workers[TaskType]; exists {
		cfg.Enabled = workerCfg.Enabled
		if workerCfg.MaxJobsActive > 0 {
			cfg.MaxJobsActive = workerCfg.MaxJobsActive
		}
		if workerCfg.Timeout > 0 {
			cfg.Timeout = config.GetDuration(workerCfg.Timeout)
		}
	}
	return cfg
}
