package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/erp/allocation/internal/domain/ledger"
	"gorm.io/gorm"
)

// GormTransactionScope implements ledger.TransactionScope using GORM transactions.
// Every unit of work runs at the configured isolation level.
type GormTransactionScope struct {
	db        *gorm.DB
	isolation sql.IsolationLevel
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB, isolation sql.IsolationLevel) *GormTransactionScope {
	return &GormTransactionScope{db: db, isolation: isolation}
}

// Execute runs fn within a database transaction. If fn returns an error or
// panics, or ctx is cancelled before commit, the transaction is rolled back.
// Serialization failures surface as shared.ErrConcurrencyConflict.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(store ledger.Store) error) error {
	var opts *sql.TxOptions
	if s.isolation != sql.LevelDefault {
		opts = &sql.TxOptions{Isolation: s.isolation}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(NewGormLedgerStore(tx))
	}, opts)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return translateError("run ledger transaction", err)
}

var _ ledger.TransactionScope = (*GormTransactionScope)(nil)
