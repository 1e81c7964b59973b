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

// Statement classes reported on every SQL log line
const (
	StatementRead         = "read"
	StatementLockingRead  = "locking_read"
	StatementVersionGuard = "version_guard"
	StatementWrite        = "write"
)

// GormLogger routes GORM output to zap. Besides errors and slow statements it
// reports version-guarded updates that matched no row, which is how a
// concurrent writer shows up on stores without row locks.
type GormLogger struct {
	logger          *zap.Logger
	logLevel        gormlogger.LogLevel
	slowThreshold   time.Duration
	reportNotFound  bool
	reportStaleRows bool
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the slow statement threshold; zero disables it
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) {
		l.slowThreshold = threshold
	}
}

// WithRecordNotFoundReported logs gorm.ErrRecordNotFound as an error.
// Lookups of unknown documents are ordinary rejections, so it is off by default.
func WithRecordNotFoundReported(report bool) GormLoggerOption {
	return func(l *GormLogger) {
		l.reportNotFound = report
	}
}

// WithStaleVersionReported toggles the warning for version guards that
// matched no row
func WithStaleVersionReported(report bool) GormLoggerOption {
	return func(l *GormLogger) {
		l.reportStaleRows = report
	}
}

// NewGormLogger creates a GORM logger backed by zap
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	gl := &GormLogger{
		logger:          OrNop(zapLogger).Named("gorm"),
		logLevel:        level,
		slowThreshold:   200 * time.Millisecond,
		reportStaleRows: true,
	}
	for _, opt := range opts {
		opt(gl)
	}
	return gl
}

// LogMode implements gormlogger.Interface
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

// Info implements gormlogger.Interface
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Info {
		l.logger.Info(fmt.Sprintf(msg, data...), ContextFields(ctx)...)
	}
}

// Warn implements gormlogger.Interface
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Warn {
		l.logger.Warn(fmt.Sprintf(msg, data...), ContextFields(ctx)...)
	}
}

// Error implements gormlogger.Interface
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.logLevel >= gormlogger.Error {
		l.logger.Error(fmt.Sprintf(msg, data...), ContextFields(ctx)...)
	}
}

// Trace implements gormlogger.Interface and logs one line per statement
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	class := ClassifyStatement(sql)

	fields := append([]zap.Field{
		zap.String("statement", class),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}, ContextFields(ctx)...)

	switch {
	case err != nil && l.logLevel >= gormlogger.Error:
		if !l.reportNotFound && errors.Is(err, gormlogger.ErrRecordNotFound) {
			return
		}
		l.logger.Error("SQL statement failed", append(fields, zap.Error(err))...)

	case err == nil && class == StatementVersionGuard && rows == 0 && l.reportStaleRows && l.logLevel >= gormlogger.Warn:
		l.logger.Warn("Version guard matched no row", fields...)

	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.logLevel >= gormlogger.Warn:
		l.logger.Warn(fmt.Sprintf("Slow SQL statement (>= %v)", l.slowThreshold), fields...)

	case l.logLevel >= gormlogger.Info:
		l.logger.Debug("SQL statement", fields...)
	}
}

// ClassifyStatement labels a rendered SQL statement for logging
func ClassifyStatement(sql string) string {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	switch {
	case strings.HasPrefix(upper, "SELECT") && strings.Contains(upper, "FOR UPDATE"):
		return StatementLockingRead
	case strings.HasPrefix(upper, "SELECT"):
		return StatementRead
	case strings.HasPrefix(upper, "UPDATE") && strings.Contains(upper, "AND VERSION ="):
		return StatementVersionGuard
	}
	return StatementWrite
}

// MapGormLogLevel maps the [log] sql setting to a GORM log level
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
