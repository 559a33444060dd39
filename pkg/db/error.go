package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATE codes the engine classifies.
const (
	pgUniqueViolation       = "23505"
	pgNotNullViolation      = "23502"
	pgForeignKeyViolation   = "23503"
	pgUndefinedTable        = "42P01"
	pgInsufficientPrivilege = "42501"
	pgIntegrityClass        = "23"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	if pgCode(err) == pgUniqueViolation {
		return true
	}

	// PostgreSQL without a typed error (e.g. through a proxy).
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// SQLite
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsNotNullViolation reports a NOT NULL constraint failure.
func IsNotNullViolation(err error) bool {
	if err == nil {
		return false
	}
	if pgCode(err) == pgNotNullViolation {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NOT NULL constraint failed") ||
		strings.Contains(msg, "violates not-null constraint") ||
		strings.Contains(msg, "contains null values")
}

// IsForeignKeyViolation reports a foreign key constraint failure.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	if pgCode(err) == pgForeignKeyViolation {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// IsIntegrityViolation reports any constraint-class failure.
func IsIntegrityViolation(err error) bool {
	if err == nil {
		return false
	}
	if strings.HasPrefix(pgCode(err), pgIntegrityClass) {
		return true
	}
	if IsDuplicateKeyErr(err) || IsNotNullViolation(err) || IsForeignKeyViolation(err) {
		return true
	}
	return strings.Contains(err.Error(), "constraint failed")
}

// IsUndefinedTable reports a lookup against a table that does not exist.
func IsUndefinedTable(err error) bool {
	if err == nil {
		return false
	}
	if pgCode(err) == pgUndefinedTable {
		return true
	}
	return strings.Contains(err.Error(), "no such table")
}

// IsInsufficientPrivilege reports a permission failure.
func IsInsufficientPrivilege(err error) bool {
	if err == nil {
		return false
	}
	if pgCode(err) == pgInsufficientPrivilege {
		return true
	}
	return strings.Contains(err.Error(), "permission denied")
}
