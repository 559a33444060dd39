package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesDefaults(t *testing.T) {
	cfg, err := New(Source{})
	require.NoError(t, err)

	assert.Equal(t, "schemashift", cfg.AppName)
	assert.Equal(t, "schema_unit_ledger", cfg.Migration.LedgerTable)
	assert.True(t, cfg.Migration.PreserveData)
	assert.Equal(t, DefaultBackfillConfig(), cfg.Backfill)
	assert.Equal(t, "console", cfg.Observability.LogFormat)
	assert.Equal(t, "warn", cfg.Observability.SQLLogLevel)
	assert.Equal(t, 5*time.Second, cfg.Observability.SlowStatement)
	assert.True(t, cfg.Observability.LogDDL)
	assert.False(t, cfg.Observability.OtelEnabled)
	assert.Equal(t, 1.0, cfg.Observability.SamplingRatio)
}

func TestNewReadsObservabilityAliases(t *testing.T) {
	t.Setenv("DEPLOYMENT_ENV", "staging")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_SLOW_STATEMENT", "250ms")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")

	cfg, err := New(Source{})
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.Observability.SlowStatement)
	assert.True(t, cfg.Observability.OtelEnabled)
	assert.Equal(t, "collector:4318", cfg.Observability.OTLPEndpoint)
	assert.Equal(t, "http", cfg.Observability.OTLPProtocol)
	assert.Equal(t, 0.25, cfg.Observability.SamplingRatio)
}

func TestNewRejectsSamplingRatioOutOfRange(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "1.5")

	_, err := New(Source{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sampling_ratio")
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_TYPE", "SQLite")
	t.Setenv("DATABASE_NAME", "local.db")
	t.Setenv("MIGRATION_PRESERVE_DATA", "false")

	cfg, err := New(Source{})
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, "local.db", cfg.DBName)
	assert.False(t, cfg.Migration.PreserveData)
}

func TestNewReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemashift.yaml")
	content := []byte("backfill:\n  membership_role: owner\n  team_name: core\nmigration:\n  ledger_table: unit_ledger\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := New(Source{File: path})
	require.NoError(t, err)

	assert.Equal(t, "owner", cfg.Backfill.MembershipRole)
	assert.Equal(t, "core", cfg.Backfill.TeamName)
	assert.Equal(t, "admin", cfg.Backfill.SubjectRole)
	assert.Equal(t, "unit_ledger", cfg.Migration.LedgerTable)
}

func TestNewRejectsEmptyTeamName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemashift.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backfill:\n  team_name: \"\"\n"), 0o644))

	_, err := New(Source{File: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "team_name")
}
