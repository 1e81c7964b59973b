package telemetry_test

import (
	"context"
	"testing"

	"github.com/erp/allocation/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type tracedRow struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func openTracedDB(t *testing.T, cfg telemetry.DBTracingConfig) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, telemetry.RegisterDBTracing(db, cfg, nil))
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	sr := setupTestTracer(t)
	db := openTracedDB(t, telemetry.DBTracingConfig{Enabled: false})

	require.NoError(t, db.Create(&tracedRow{Name: "a"}).Error)
	assert.Empty(t, sr.Ended())
}

func TestRegisterDBTracing_ChildSpans(t *testing.T) {
	sr := setupTestTracer(t)
	db := openTracedDB(t, telemetry.DBTracingConfig{Enabled: true, DBSystem: "sqlite"})

	ctx, parent := telemetry.StartSpan(context.Background(), "DocumentService.Record")
	require.NoError(t, db.WithContext(ctx).Create(&tracedRow{Name: "a"}).Error)

	var row tracedRow
	err := db.WithContext(ctx).Where("id = ?", 999).Take(&row).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	parent.End()

	var children int
	for _, s := range sr.Ended() {
		if s.Parent().SpanID() == parent.SpanContext().SpanID() {
			children++
			assert.NotEqual(t, codes.Error, s.Status().Code)
		}
	}
	assert.GreaterOrEqual(t, children, 2)
}
