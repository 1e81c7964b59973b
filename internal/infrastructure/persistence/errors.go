package persistence

import (
	"errors"
	"fmt"

	"github.com/erp/allocation/internal/domain/shared"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATE codes the store maps to domain errors
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
	sqlStateCheckViolation       = "23514"
)

// translateError maps driver and GORM errors to shared.DomainError codes.
// Unknown errors are wrapped with op and returned unchanged otherwise.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if shared.CodeOf(err) != "" {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("%s: record not found", op))
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.NewDomainError(shared.CodeAlreadyExists, fmt.Sprintf("%s: record already exists", op))
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("%s: check constraint violated", op))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return shared.NewDomainError(shared.CodeConcurrencyConflict,
				fmt.Sprintf("%s: concurrent update detected, retry the operation", op))
		case sqlStateUniqueViolation:
			return shared.NewDomainError(shared.CodeAlreadyExists, fmt.Sprintf("%s: %s", op, pgErr.Message))
		case sqlStateCheckViolation:
			return shared.NewDomainError(shared.CodeInvalidState, fmt.Sprintf("%s: %s", op, pgErr.Message))
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return shared.NewDomainError(shared.CodeConcurrencyConflict,
				fmt.Sprintf("%s: database is locked by another writer, retry the operation", op))
		case sqlite3.ErrConstraint:
			if liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
				return shared.NewDomainError(shared.CodeAlreadyExists, fmt.Sprintf("%s: %s", op, liteErr.Error()))
			}
		}
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}
