package persistence

import (
	"fmt"
	"time"

	"github.com/erp/allocation/internal/infrastructure/config"
	"github.com/erp/allocation/internal/infrastructure/logger"
	"github.com/erp/allocation/internal/infrastructure/persistence/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database holds the database connection and the transaction settings
type Database struct {
	DB     *gorm.DB
	config *config.DatabaseConfig
}

// NewDatabase opens the configured driver. SQL statements are logged through
// zapLogger at the given GORM level.
func NewDatabase(cfg *config.DatabaseConfig, zapLogger *zap.Logger, logLevel gormlogger.LogLevel) (*Database, error) {
	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLogger(zapLogger, logLevel),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// one writer at a time; an in-memory database lives and dies with its only connection
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db, config: cfg}, nil
}

func openDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.Open(cfg.DSN()), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.DSN()), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// AutoMigrate creates the ledger tables from the GORM models. PostgreSQL
// deployments use the SQL migrations instead; this serves SQLite files and tests.
func (d *Database) AutoMigrate() error {
	return d.DB.AutoMigrate(
		&models.LedgerDocumentModel{},
		&models.AllocationModel{},
		&models.AllocationBatchModel{},
		&models.AllocationItemModel{},
	)
}

// TransactionScope returns a scope running at the configured isolation level
func (d *Database) TransactionScope() (*GormTransactionScope, error) {
	isolation, err := d.config.IsolationLevel()
	if err != nil {
		return nil, err
	}
	return NewGormTransactionScope(d.DB, isolation), nil
}

// Store returns a store outside any transaction, for read paths
func (d *Database) Store() *GormLedgerStore {
	return NewGormLedgerStore(d.DB)
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}
