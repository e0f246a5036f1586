package config_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/ledgermatch/internal/config"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	"github.com/MrJamesThe3rd/ledgermatch/internal/scoring"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, scoring.DefaultPolicy(), cfg.Policy())
	assert.Equal(t, reconcile.DefaultWeights(), cfg.Weights())
	assert.Equal(t, reconcile.AutoMatchOptions{Threshold: 70}, cfg.AutoMatchOptions())
	assert.Equal(t, 3, cfg.CategorizeOptions().MinSuggestionGroup)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.StallTimeout)
	assert.Equal(t, 500, cfg.Server.BulkSyncLimit)
	assert.Empty(t, cfg.Schedule.AutoMatch)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SCORING_AUTO_APPLY", "0.9")
	t.Setenv("MATCHING_THRESHOLD", "80")
	t.Setenv("MATCHING_LIMIT", "500")
	t.Setenv("JOB_WORKERS", "8")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://finance.example.com,https://ops.example.com")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_SSLMODE", "require")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.9, cfg.Policy().Thresholds.AutoApply, 1e-9)
	assert.Equal(t, reconcile.AutoMatchOptions{Threshold: 80, Limit: 500}, cfg.AutoMatchOptions())
	assert.Equal(t, 8, cfg.Jobs.Workers)
	assert.Equal(t, []string{"https://finance.example.com", "https://ops.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "postgres://postgres:@db:5432/ledgermatch?sslmode=require", cfg.ConnectionString())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"ReviewAboveAuto", "SCORING_REVIEW", "0.95"},
		{"CapBelowBase", "SCORING_KEYWORD_CAP", "0.30"},
		{"DateWindow", "MATCHING_DATE_ZERO_DAYS", "2"},
		{"Threshold", "MATCHING_THRESHOLD", "150"},
		{"Workers", "JOB_WORKERS", "0"},
		{"NotANumber", "JOB_QUEUE_SIZE", "lots"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestConfig_Logger(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer

	logger, err := cfg.Logger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "task_id", "abc")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	cfg.Log.Format = "xml"
	_, err = cfg.Logger(&buf)
	assert.Error(t, err)
}
