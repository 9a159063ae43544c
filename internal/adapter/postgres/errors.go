package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// MapError converts pgx/pgconn errors to domain errors.
// context.DeadlineExceeded and context.Canceled are NOT mapped; they pass through
// and the store layer decides whether they mean the store is unavailable.
func MapError(err error, entity, id string) error {
	if err == nil {
		return nil
	}

	prefix := entity
	if id != "" {
		prefix = entity + " " + id
	}

	// context errors pass through as-is
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", prefix, err)
	}

	// pgx.ErrNoRows → domain.ErrNotFound
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", prefix, domain.ErrNotFound)
	}

	// PgError codes
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return fmt.Errorf("%s: %w", prefix, domain.ErrConflict)
		case pgErr.Code == "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w", prefix, domain.ErrNotFound)
		case pgErr.Code == "23514": // check_violation
			return fmt.Errorf("%s: %w", prefix, domain.ErrValidation)
		case strings.HasPrefix(pgErr.Code, "08"), // connection_exception
			pgErr.Code == "53300", // too_many_connections
			pgErr.Code == "57P01", // admin_shutdown
			pgErr.Code == "57P03": // cannot_connect_now
			return fmt.Errorf("%s: %w: %w", prefix, domain.ErrStoreUnavailable, err)
		}
		return fmt.Errorf("%s: %w", prefix, err)
	}

	if isConnectionError(err) {
		return fmt.Errorf("%s: %w: %w", prefix, domain.ErrStoreUnavailable, err)
	}

	// Everything else: wrap with context
	return fmt.Errorf("%s: %w", prefix, err)
}

func isConnectionError(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.Timeout(err)
}
