package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories react to.
const (
	CodeUniqueViolation      = "23505"
	CodeCardinalityViolation = "21000"
)

func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return strings.Contains(err.Error(), code)
}

// IsDuplicateKey reports whether err was caused by colliding keys, either
// against a stored row (unique violation) or inside a single multi-row
// upsert that touches the same row twice (cardinality violation).
func IsDuplicateKey(err error) bool {
	return hasCode(err, CodeUniqueViolation) || hasCode(err, CodeCardinalityViolation)
}
