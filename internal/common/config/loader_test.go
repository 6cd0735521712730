package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    port: 5432
    database: hotspots
    user: analyst
  elasticsearch:
    addresses:
      - http://localhost:9200
  redis:
    address: localhost:6379
llm:
  model: qwen-plus
  api_key: ${HOTSPOT_TEST_LLM_KEY}
workers:
  analyze-hotspot-batch:
    enabled: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	t.Setenv("HOTSPOT_TEST_LLM_KEY", "sk-test")

	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "hotspot-suitability", cfg.Database.Elasticsearch.ResultIndex)
	assert.Equal(t, "http://localhost:9200", cfg.Database.Elasticsearch.GetURL())
	assert.Equal(t, 3, cfg.Features.MaxAttempts)
	assert.Equal(t, "asc", cfg.Classification.PriorityOrder)
	assert.Equal(t, "其他", cfg.Classification.DefaultCategory)
	assert.InDelta(t, 0.6, cfg.Scoring.AcceptanceThreshold, 1e-9)
	assert.InDelta(t, 0.1, cfg.Scoring.AvoidCeiling, 1e-9)
	assert.Equal(t, 100, cfg.Table.PageSize)
	assert.Greater(t, cfg.Pipeline.ExtractionWorkers, cfg.Pipeline.AnalysisWorkers)

	wcfg := cfg.Workers["analyze-hotspot-batch"]
	assert.True(t, wcfg.Enabled)
	assert.Equal(t, 5, wcfg.MaxJobsActive)
	assert.Equal(t, 30000, wcfg.Timeout)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{
			name:    "bad priority order",
			extra:   "classification:\n  priority_order: sideways\n",
			wantErr: "priority_order",
		},
		{
			name:    "analysis pool larger than extraction pool",
			extra:   "pipeline:\n  extraction_workers: 2\n  analysis_workers: 4\n",
			wantErr: "extraction_workers",
		},
		{
			name:    "unknown cache backend",
			extra:   "features:\n  cache_backend: memcached\n",
			wantErr: "cache_backend",
		},
		{
			name:    "bad timezone",
			extra:   "table:\n  timezone: Mars/Olympus\n",
			wantErr: "timezone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, minimalConfig+tt.extra))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingBroker(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, "llm:\n  model: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camunda.broker_address")
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{"a": {Enabled: false}}}

	assert.False(t, IsWorkerEnabled(cfg, "a"))
	assert.True(t, IsWorkerEnabled(cfg, "missing"))
	assert.Equal(t, 3, GetWorkerConfig(cfg, "missing").MaxRetries)
}
