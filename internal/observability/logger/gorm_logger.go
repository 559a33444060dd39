package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures statement logging.
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// LogDDL logs schema statements issued inside a unit at info level.
	LogDDL bool
}

// DefaultGormLoggerConfig logs failures and slow statements, plus the DDL
// of every unit.
func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 5 * time.Second,
		LogDDL:        true,
	}
}

// ParseGormLevel maps silent, error, warn and info to gorm levels. An empty
// string is warn.
func ParseGormLevel(level string) (gormlogger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent, nil
	case "error":
		return gormlogger.Error, nil
	case "", "warn":
		return gormlogger.Warn, nil
	case "info":
		return gormlogger.Info, nil
	default:
		return gormlogger.Silent, fmt.Errorf("invalid sql log level %q", level)
	}
}

// GormLogger writes gorm statements to zap with the run and unit taken from
// the statement context. Bound values are never logged.
type GormLogger struct {
	base   *zap.Logger
	level  gormlogger.LogLevel
	slow   time.Duration
	logDDL bool
}

// NewGormLogger builds a GormLogger. A nil base falls back to the global
// logger at call time.
func NewGormLogger(base *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{
		base:   base,
		level:  cfg.Level,
		slow:   cfg.SlowThreshold,
		logDDL: cfg.LogDDL,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs a failed statement, a slow one, or a unit's DDL. Everything else
// is logged at debug when the level is info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	op := operationFromSQL(sql)
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.String("operation", op),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}

	log := l.logger(ctx)
	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.level >= gormlogger.Error:
		log.Error("sql.failed", append(fields, zap.Error(err))...)
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		log.Warn("sql.slow", fields...)
	case l.logDDL && err == nil && isDDL(op) && UnitFromContext(ctx) != "":
		log.Info("sql.ddl", fields...)
	case l.level >= gormlogger.Info:
		log.Debug("sql.statement", fields...)
	}
}

// ParamsFilter drops bound values so backfilled user data stays out of logs.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) logger(ctx context.Context) *zap.Logger {
	base := l.base
	if base == nil {
		base = zap.L()
	}
	return WithContext(ctx, base.Named("sql"))
}

func isDDL(op string) bool {
	return op == "CREATE" || op == "ALTER" || op == "DROP"
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE",
			"CREATE", "ALTER", "DROP", "PRAGMA", "SAVEPOINT", "RELEASE":
			return token
		case "WITH", "EXPLAIN":
			continue
		}
	}
	return "UNKNOWN"
}

var _ gormlogger.Interface = (*GormLogger)(nil)
