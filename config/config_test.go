package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "rewards-core", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "Asia/Almaty", cfg.App.Location.String())
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Empty(t, cfg.HTTP.AdminAPIKeys)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, 5, cfg.Database.MaxRetries)
	assert.True(t, cfg.Redis.Disabled)
	assert.Equal(t, 5*time.Minute, cfg.Redis.SummaryTTL)
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.LedgerAuditInterval)

	table := cfg.Rewards.Table()
	assert.Equal(t, int64(10), table.LessonBase)
	assert.Equal(t, int64(50), table.QuizPassBase)
	assert.Equal(t, int64(5), table.MistakeResolved)

	require.NotNil(t, cfg.Features)
	assert.True(t, cfg.Features.IsEnabled(FeatureGamificationStreaks, ForUser("u1")))
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("HTTP_ADMIN_API_KEYS", "k1,k2")
	t.Setenv("REWARD_LESSON_BASE", "15")
	t.Setenv("REDIS_SUMMARY_TTL", "30s")
	t.Setenv("FEATURE_GAMIFICATION_ACHIEVEMENTS", "false")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-api-key=abc,tenant=rewards")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, []string{"k1", "k2"}, cfg.HTTP.AdminAPIKeys)
	assert.Equal(t, int64(15), cfg.Rewards.LessonBase)
	assert.Equal(t, 30*time.Second, cfg.Redis.SummaryTTL)
	assert.False(t, cfg.Features.IsEnabled(FeatureGamificationAchievements, ForUser("u1")))
	assert.True(t, cfg.Observability.TracingEnabled)
	assert.Equal(t, map[string]string{"x-api-key": "abc", "tenant": "rewards"}, cfg.Observability.OTLPHeaders)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown environment",
			env:     map[string]string{"APP_ENV": "qa"},
			wantErr: "APP_ENV",
		},
		{
			name:    "production without database",
			env:     map[string]string{"APP_ENV": "production"},
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "bad timezone",
			env:     map[string]string{"APP_TIMEZONE": "Mars/Olympus"},
			wantErr: "app config",
		},
		{
			name:    "zero retries",
			env:     map[string]string{"DB_MAX_RETRIES": "0"},
			wantErr: "DB_MAX_RETRIES",
		},
		{
			name:    "negative reward",
			env:     map[string]string{"REWARD_QUIZ_PASS_BASE": "-1"},
			wantErr: "rewards:",
		},
		{
			name:    "negative audit interval",
			env:     map[string]string{"LEDGER_AUDIT_INTERVAL": "-1m"},
			wantErr: "LEDGER_AUDIT_INTERVAL",
		},
		{
			name:    "short token secret",
			env:     map[string]string{"HTTP_ADMIN_TOKEN_SECRET": "hunter2"},
			wantErr: "HTTP_ADMIN_TOKEN_SECRET",
		},
		{
			name:    "sample ratio above one",
			env:     map[string]string{"OTEL_SAMPLER_RATIO": "1.5"},
			wantErr: "OTEL_SAMPLER_RATIO",
		},
		{
			name:    "malformed duration",
			env:     map[string]string{"REDIS_SUMMARY_TTL": "soon"},
			wantErr: "parse env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFeatureFlags_Rollout(t *testing.T) {
	ff := NewFeatureFlags()

	require.NoError(t, ff.SetRolloutPercent(FeatureProgressSummaryCache, 50))

	enabled := 0
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		first := ff.IsEnabled(FeatureProgressSummaryCache, ForUser(id))
		assert.Equal(t, first, ff.IsEnabled(FeatureProgressSummaryCache, ForUser(id)), "bucket must be stable")
		if first {
			enabled++
		}
	}
	assert.Greater(t, enabled, 0)
	assert.Less(t, enabled, 12)

	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureProgressSummaryCache, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.EnableFeature("unknown"), ErrFeatureNotFound)
}

func TestFeatureFlags_OverridesAndAdmin(t *testing.T) {
	ff := NewFeatureFlags()
	require.NoError(t, ff.DisableFeature(FeatureGamificationStreaks))

	assert.False(t, ff.IsEnabled(FeatureGamificationStreaks, ForUser("u1")))
	assert.True(t, ff.IsEnabled(FeatureGamificationStreaks, &FeatureContext{UserID: "u1", IsAdmin: true}))

	ff.SetUserOverride("u2", FeatureGamificationStreaks, true)
	assert.True(t, ff.IsEnabled(FeatureGamificationStreaks, ForUser("u2")))

	ff.ClearUserOverrides("u2")
	assert.False(t, ff.IsEnabled(FeatureGamificationStreaks, ForUser("u2")))

	var nilFlags *FeatureFlags
	assert.True(t, nilFlags.IsEnabled(FeatureGamificationStreaks, nil))
	assert.False(t, ff.IsEnabled("unknown", nil))
}
