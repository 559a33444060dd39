package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Migration     MigrationConfig
	Backfill      BackfillConfig
	Observability ObservabilityConfig
}

// MigrationConfig configures the migration runner.
type MigrationConfig struct {
	LedgerTable   string
	PreserveData  bool
	UUIDExtension string
	// MetricsTextfile, when set, receives a prometheus textfile after each run.
	MetricsTextfile string
}

// ObservabilityConfig holds logging and telemetry settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
	// SQLLogLevel is the gorm statement level: silent, error, warn or info.
	SQLLogLevel   string
	SlowStatement time.Duration
	// LogDDL logs every schema statement a unit issues at info level.
	LogDDL bool

	OtelEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

// Source points the loader at an optional YAML file.
type Source struct {
	File string
}

// Module provides Config from the environment and the optional Source file.
var Module = fx.Module("config",
	fx.Provide(New),
)

// Load loads configuration from environment variables and .env file.
func Load() (Config, error) {
	return New(Source{})
}

// New loads configuration from .env, environment variables and, when set,
// the YAML file in src. Environment variables win over the file.
func New(src Source) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)

	if file := strings.TrimSpace(src.File); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config %s: %w", file, err)
			}
		}
	}

	cfg := Config{
		AppName:           v.GetString("app.service"),
		AppVersion:        v.GetString("app.version"),
		Environment:       v.GetString("environment"),
		DBType:            strings.ToLower(strings.TrimSpace(v.GetString("database.type"))),
		DBHost:            v.GetString("database.host"),
		DBPort:            v.GetString("database.port"),
		DBName:            v.GetString("database.name"),
		DBUser:            v.GetString("database.user"),
		DBPassword:        v.GetString("database.password"),
		DBSSLMode:         v.GetString("database.sslmode"),
		DBMaxIdleConn:     v.GetInt("database.max_idle_conn"),
		DBMaxOpenConn:     v.GetInt("database.max_open_conn"),
		DBConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
		DBConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		Migration: MigrationConfig{
			LedgerTable:     strings.TrimSpace(v.GetString("migration.ledger_table")),
			PreserveData:    v.GetBool("migration.preserve_data"),
			UUIDExtension:   strings.TrimSpace(v.GetString("migration.uuid_extension")),
			MetricsTextfile: strings.TrimSpace(v.GetString("migration.metrics_textfile")),
		},
		Backfill: BackfillConfig{
			TeamName:       strings.TrimSpace(v.GetString("backfill.team_name")),
			MembershipRole: strings.TrimSpace(v.GetString("backfill.membership_role")),
			SubjectRole:    strings.TrimSpace(v.GetString("backfill.subject_role")),
			DefaultPlan:    strings.TrimSpace(v.GetString("backfill.default_plan")),
			FallbackSuffix: strings.TrimSpace(v.GetString("backfill.fallback_suffix")),
		},
		Observability: ObservabilityConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(v.GetString("log.level"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(v.GetString("log.format"))),
			SQLLogLevel:   strings.ToLower(strings.TrimSpace(v.GetString("log.sql_level"))),
			SlowStatement: v.GetDuration("log.slow_statement"),
			LogDDL:        v.GetBool("log.ddl"),
			OtelEnabled:   v.GetBool("otel.enabled"),
			OTLPEndpoint:  strings.TrimSpace(v.GetString("otel.endpoint")),
			OTLPProtocol:  strings.ToLower(strings.TrimSpace(v.GetString("otel.protocol"))),
			SamplingRatio: v.GetFloat64("otel.sampling_ratio"),
		},
	}

	if err := validateBackfillConfig(cfg.Backfill); err != nil {
		return Config{}, err
	}
	if cfg.Migration.LedgerTable == "" {
		return Config{}, errors.New("migration.ledger_table cannot be empty")
	}
	if r := cfg.Observability.SamplingRatio; r < 0 || r > 1 {
		return Config{}, fmt.Errorf("otel.sampling_ratio must be within [0, 1], got %v", r)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.service", "schemashift")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("environment", "development")

	v.SetDefault("database.type", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "postgres")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conn", 2)
	v.SetDefault("database.max_open_conn", 4)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.conn_max_idle_time", 60)

	v.SetDefault("migration.ledger_table", "schema_unit_ledger")
	v.SetDefault("migration.preserve_data", true)
	v.SetDefault("migration.uuid_extension", "pgcrypto")
	v.SetDefault("migration.metrics_textfile", "")

	// a CLI run is short and rare, so every run is traced when tracing is on
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.sql_level", "warn")
	v.SetDefault("log.slow_statement", "5s")
	v.SetDefault("log.ddl", true)
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.protocol", "grpc")
	v.SetDefault("otel.sampling_ratio", 1.0)

	defaults := DefaultBackfillConfig()
	v.SetDefault("backfill.team_name", defaults.TeamName)
	v.SetDefault("backfill.membership_role", defaults.MembershipRole)
	v.SetDefault("backfill.subject_role", defaults.SubjectRole)
	v.SetDefault("backfill.default_plan", defaults.DefaultPlan)
	v.SetDefault("backfill.fallback_suffix", defaults.FallbackSuffix)
}

// bindEnvAliases maps keys to the conventional variable names used by
// deployment tooling and the OpenTelemetry SDKs. The first set variable wins.
func bindEnvAliases(v *viper.Viper) {
	_ = v.BindEnv("environment", "DEPLOYMENT_ENV", "ENVIRONMENT")
	_ = v.BindEnv("app.version", "SERVICE_VERSION", "APP_VERSION")
	_ = v.BindEnv("otel.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_ENDPOINT")
	_ = v.BindEnv("otel.protocol", "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "OTEL_EXPORTER_OTLP_PROTOCOL", "OTEL_PROTOCOL")
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}
