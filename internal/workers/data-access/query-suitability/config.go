// internal/workers/data-access/query-suitability/config.go
package querysuitability

import (
	"time"

	"hotspot-selection/internal/common/config"
)

type Config struct {
	Enabled     bool
	Timeout     time.Duration
	DefaultSize int
	Location    *time.Location
}

func LoadConfig(appConfig *config.Config) *Config {
	cfg := &Config{
		Enabled:     true,
		Timeout:     30 * time.Second,
		DefaultSize: 20,
		Location:    time.UTC,
	}
	if appConfig == nil {
		return cfg
	}
	if workerCfg, ok := appConfig.Workers[TaskType]; ok {
		cfg.Enabled = workerCfg.Enabled
		if workerCfg.Timeout > 0 {
			cfg.Timeout = config.GetDuration(workerCfg.Timeout)
		}
	}
	if tz := appConfig.Table.Timezone; tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			cfg.Location = loc
		}
	}
	return cfg
}
