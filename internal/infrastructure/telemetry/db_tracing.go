package telemetry

import (
	"errors"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig controls the otelgorm plugin
type DBTracingConfig struct {
	Enabled    bool
	DBSystem   string // "postgresql" or "sqlite"
	LogFullSQL bool   // keep bound variables in db.statement
}

// RegisterDBTracing installs otelgorm on db so every statement becomes a child
// span of the calling service span. Ledger spans additionally carry the table
// and affected row count; record-not-found is not treated as an error.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	cb := db.Callback()
	registrations := []struct {
		name     string
		register func(string, func(*gorm.DB)) error
	}{
		{"ledger_trace:create", cb.Create().After("gorm:create").Register},
		{"ledger_trace:query", cb.Query().After("gorm:query").Register},
		{"ledger_trace:update", cb.Update().After("gorm:update").Register},
		{"ledger_trace:delete", cb.Delete().After("gorm:delete").Register},
		{"ledger_trace:row", cb.Row().After("gorm:row").Register},
		{"ledger_trace:raw", cb.Raw().After("gorm:raw").Register},
	}
	for _, r := range registrations {
		if err := r.register(r.name, annotateStatement); err != nil {
			return err
		}
	}

	if logger != nil {
		logger.Info("Database tracing enabled",
			zap.String("db_system", cfg.DBSystem),
			zap.Bool("log_full_sql", cfg.LogFullSQL),
		)
	}
	return nil
}

func annotateStatement(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Statement.RowsAffected >= 0 {
		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}
}
