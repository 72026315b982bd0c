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

	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, []string{"taxonomy/*.yaml"}, cfg.Taxonomy.Patterns)
	assert.Equal(t, int64(1000), cfg.Engine.DominantPathThreshold)
	assert.Equal(t, 0.5, cfg.Engine.HyperBonusEventThreshold)
	assert.Equal(t, time.Minute, cfg.Scheduler.AnalysisInterval)
	assert.Equal(t, 10.0, cfg.HTTP.WriteRate)
	assert.Equal(t, 20, cfg.HTTP.WriteBurst)
	assert.False(t, cfg.ProjectionEnabled())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/l.db")
	t.Setenv("TAXONOMY_FILES", "trees/*.yaml, extra/*.yml ,")
	t.Setenv("ENGINE_DOMINANT_PATH_THRESHOLD", "250")
	t.Setenv("SCHEDULER_FLUSH_INTERVAL", "3s")
	t.Setenv("FEATURE_PROJECTION_REDIS", "true")
	t.Setenv("FEATURE_ENGINE_HYPER_BONUS", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, []string{"trees/*.yaml", "extra/*.yml"}, cfg.Taxonomy.Patterns)
	assert.Equal(t, int64(250), cfg.Engine.DominantPathThreshold)
	assert.Equal(t, 3*time.Second, cfg.Scheduler.FlushInterval)
	assert.True(t, cfg.ProjectionEnabled())
	assert.False(t, cfg.Features.IsEnabled(FeatureHyperBonus))
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SCHEDULER_MAX_CONCURRENCY", "many")
	t.Setenv("APP_SHUTDOWN_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Scheduler.MaxConcurrency)
	assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("ENGINE_DYNAMIC_CAPACITY", "0")
	t.Setenv("SCHEDULER_MAX_CONCURRENCY", "0")
	t.Setenv("HTTP_WRITE_BURST", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_WRITE_BURST")
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "ENGINE_DYNAMIC_CAPACITY")
	assert.Contains(t, err.Error(), "SCHEDULER_MAX_CONCURRENCY")
}

func TestValidate_MemoryNotAllowedInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, err := Load()
	assert.ErrorContains(t, err, "not allowed in production")
}

func TestFeatureFlags(t *testing.T) {
	ff := NewFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureDynamicClustering))
	assert.False(t, ff.IsEnabled(FeatureProjectionRedis))
	assert.False(t, ff.IsEnabled("unknown"))

	require.NoError(t, ff.Disable(FeatureSpecialistPenalty))
	assert.False(t, ff.IsEnabled(FeatureSpecialistPenalty))
	assert.ErrorIs(t, ff.Enable("unknown"), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureHyperBonus, 101), ErrInvalidRolloutPercent)

	require.NoError(t, ff.SetRolloutPercent(FeatureHyperBonus, 50))
	first := ff.IsEnabledFor(FeatureHyperBonus, "alice")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabledFor(FeatureHyperBonus, "alice"))
	}

	all := ff.All()
	require.Len(t, all, 4)
	assert.Equal(t, FeatureDynamicClustering, all[0].Name)
}

func TestFeatureNameToEnvKey(t *testing.T) {
	assert.Equal(t, "FEATURE_ENGINE_HYPER_BONUS", featureNameToEnvKey(FeatureHyperBonus))
}
