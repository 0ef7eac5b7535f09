package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pulsechat/pulse/api/domain"
)

// WrapError wraps an error with an operation context.
func WrapError(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, err)
}

// HandleNotFound converts pgx.ErrNoRows to domain.ErrNotFound.
// Returns the original error if it's not a no-rows error.
func HandleNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

// WrapNotFound wraps an error, converting pgx.ErrNoRows to domain.ErrNotFound.
func WrapNotFound(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return WrapError(operation, err)
}

// Postgres error classes translated into domain sentinels at call sites.
const (
	pgUniqueViolation = "23505"
	pgFKViolation     = "23503"
	pgCheckViolation  = "23514"
)

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return pgErrCode(err) == pgUniqueViolation }
func isFKViolation(err error) bool     { return pgErrCode(err) == pgFKViolation }
func isCheckViolation(err error) bool  { return pgErrCode(err) == pgCheckViolation }
