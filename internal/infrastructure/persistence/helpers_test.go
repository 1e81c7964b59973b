package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/erp/allocation/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testParty = ledger.Party{Type: ledger.PartyTypeCustomer, ID: 7}

// newSQLiteDatabase opens a migrated in-memory database
func newSQLiteDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: ":memory:",
		Isolation:  "default",
	}, nil, gormlogger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newMockPostgres returns a GORM handle speaking the PostgreSQL dialect to sqlmock
func newMockPostgres(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return gormDB, mock, mockDB
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var docSeq int

// seedDocument stores an active document of the given kind and base total
func seedDocument(t *testing.T, store ledger.Store, party ledger.Party, kind ledger.DocumentKind, total string) *ledger.LedgerDocument {
	t.Helper()
	docSeq++
	money, err := valueobject.NewMoneyFromString(total, valueobject.USD)
	require.NoError(t, err)
	doc, err := ledger.NewLedgerDocument(ledger.NewDocumentParams{
		Party:            party,
		Kind:             kind,
		Number:           fmt.Sprintf("%s-%03d", kind, docSeq),
		TotalOriginal:    money,
		FxRate:           decimal.NewFromInt(1),
		SourceKind:       "erp",
		SourceDocumentID: fmt.Sprintf("doc-%d", docSeq),
		IssuedAt:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(docSeq) * time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, store.SaveDocument(context.Background(), doc))
	return doc
}

func seedAllocation(t *testing.T, store ledger.Store, src ledger.Source, debitID int64, amount string) *ledger.Allocation {
	t.Helper()
	a, err := ledger.NewAllocation(testParty, src, debitID, dec(amount))
	require.NoError(t, err)
	require.NoError(t, store.AddAllocation(context.Background(), a))
	return a
}
