package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/schemashift/internal/config"
	"github.com/smallbiznis/schemashift/internal/observability/logger"
	gormlogger "gorm.io/gorm/logger"
)

const defaultServiceName = "schemashift"

// Config is the observability part of config.Config, normalized for the
// logger, the tracer and the meter.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel      string
	LogFormat     string
	SQLLogLevel   gormlogger.LogLevel
	SlowStatement time.Duration
	LogDDL        bool

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// NewConfig derives the observability settings. Debug logging also turns
// on statement logging so a unit's queries can be followed step by step.
func NewConfig(cfg config.Config) (Config, error) {
	obs := cfg.Observability

	sqlLevel, err := logger.ParseGormLevel(obs.SQLLogLevel)
	if err != nil {
		return Config{}, err
	}

	out := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             obs.LogLevel,
		LogFormat:            obs.LogFormat,
		SQLLogLevel:          sqlLevel,
		SlowStatement:        obs.SlowStatement,
		LogDDL:               obs.LogDDL,
		OtelEnabled:          obs.OtelEnabled,
		OtelExporterEndpoint: obs.OTLPEndpoint,
		OtelExporterProtocol: obs.OTLPProtocol,
		OtelSamplingRatio:    obs.SamplingRatio,
	}
	if out.ServiceName == "" {
		out.ServiceName = defaultServiceName
	}
	if out.LogLevel == "" {
		out.LogLevel = "info"
	}
	if out.OtelExporterProtocol == "" {
		out.OtelExporterProtocol = "grpc"
	}
	if out.LogLevel == "debug" && out.SQLLogLevel < gormlogger.Info {
		out.SQLLogLevel = gormlogger.Info
	}
	return out, nil
}

// Debug adds caller and stack fields to log entries.
func (c Config) Debug() bool {
	return c.LogLevel == "debug" || isDevEnv(c.Environment)
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
