package persistence

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/allocation/internal/infrastructure/config"
	"github.com/erp/allocation/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newPingableMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	require.NoError(t, err)

	return &Database{DB: gormDB, config: &config.DatabaseConfig{Driver: config.DriverPostgres, Isolation: "serializable"}}, mock
}

func TestNewDatabase_SQLite(t *testing.T) {
	db := newSQLiteDatabase(t)

	for _, model := range []any{
		&models.LedgerDocumentModel{},
		&models.AllocationModel{},
		&models.AllocationBatchModel{},
		&models.AllocationItemModel{},
	} {
		assert.True(t, db.DB.Migrator().HasTable(model))
	}
	assert.True(t, db.DB.Migrator().HasIndex(&models.LedgerDocumentModel{}, "idx_ledger_documents_source"))

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	assert.NoError(t, db.Ping())
}

func TestNewDatabase_UnsupportedDriver(t *testing.T) {
	_, err := NewDatabase(&config.DatabaseConfig{Driver: "mysql"}, nil, gormlogger.Silent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestDatabase_TransactionScope(t *testing.T) {
	t.Run("uses the configured isolation", func(t *testing.T) {
		db, _ := newPingableMockDatabase(t)
		scope, err := db.TransactionScope()
		require.NoError(t, err)
		assert.Equal(t, sql.LevelSerializable, scope.isolation)
	})

	t.Run("rejects an unknown isolation", func(t *testing.T) {
		db, _ := newPingableMockDatabase(t)
		db.config.Isolation = "snapshot"
		_, err := db.TransactionScope()
		assert.Error(t, err)
	})
}

func TestDatabase_PingAndClose(t *testing.T) {
	db, mock := newPingableMockDatabase(t)

	mock.ExpectPing()
	assert.NoError(t, db.Ping())

	mock.ExpectClose()
	assert.NoError(t, db.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}
