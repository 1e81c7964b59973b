package allocation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/erp/allocation/internal/domain/ledger"
	"github.com/erp/allocation/internal/domain/shared/valueobject"
	"github.com/erp/allocation/internal/infrastructure/config"
	"github.com/erp/allocation/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"
)

var (
	customer = ledger.Party{Type: ledger.PartyTypeCustomer, ID: 7}
	stranger = ledger.Party{Type: ledger.PartyTypeCustomer, ID: 8}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// testEnv is a migrated in-memory ledger
type testEnv struct {
	db    *persistence.Database
	scope *persistence.GormTransactionScope
	store ledger.Store
	seq   int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := persistence.NewDatabase(&config.DatabaseConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: ":memory:",
		Isolation:  "default",
	}, nil, gormlogger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	scope, err := db.TransactionScope()
	require.NoError(t, err)
	return &testEnv{db: db, scope: scope, store: db.Store()}
}

// seed stores an active USD document with fx 1 so totalBase equals total
func (e *testEnv) seed(t *testing.T, party ledger.Party, kind ledger.DocumentKind, total string) *ledger.LedgerDocument {
	t.Helper()
	e.seq++
	money, err := valueobject.NewMoneyFromString(total, valueobject.USD)
	require.NoError(t, err)
	doc, err := ledger.NewLedgerDocument(ledger.NewDocumentParams{
		Party:            party,
		Kind:             kind,
		Number:           fmt.Sprintf("%s-%03d", kind, e.seq),
		TotalOriginal:    money,
		FxRate:           decimal.NewFromInt(1),
		SourceKind:       "erp",
		SourceDocumentID: fmt.Sprintf("doc-%d", e.seq),
		IssuedAt:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(e.seq) * time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, e.store.SaveDocument(context.Background(), doc))
	return doc
}

// open returns pending for a debit document or available for a credit source
func (e *testEnv) open(t *testing.T, doc *ledger.LedgerDocument) decimal.Decimal {
	t.Helper()
	ctx := context.Background()
	var (
		sums map[int64]decimal.Decimal
		err  error
	)
	switch doc.Kind {
	case ledger.DocumentKindReceipt:
		sums, err = e.store.SumAllocationsBySource(ctx, ledger.SourceKindReceipt, []int64{doc.ID})
	case ledger.DocumentKindCreditNote:
		sums, err = e.store.SumAllocationsBySource(ctx, ledger.SourceKindCreditDocument, []int64{doc.ID})
	default:
		sums, err = e.store.SumAllocationsByTarget(ctx, []int64{doc.ID})
	}
	require.NoError(t, err)
	allocated, ok := sums[doc.ID]
	if !ok {
		allocated = decimal.Zero
	}
	return doc.OpenAmount(allocated)
}

func (e *testEnv) allocationCount(t *testing.T) int {
	t.Helper()
	all, err := e.store.FindAllocations(context.Background(), ledger.AllocationFilter{})
	require.NoError(t, err)
	return len(all)
}

func (e *testEnv) version(t *testing.T, id int64) int {
	t.Helper()
	doc, err := e.store.FindDocument(context.Background(), ledger.DocumentFilter{IDs: []int64{id}})
	require.NoError(t, err)
	return doc.Version
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.StringFixed(2))
}
