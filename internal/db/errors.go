package db

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// OverlapConstraint names the guard that rejects overlapping active
// bookings on one court. Postgres enforces it as an exclusion constraint,
// SQLite through triggers that abort with this message.
const OverlapConstraint = "bookings_no_overlap"

const pgExclusionViolation = "23P01"

// IsExclusionViolation reports whether err came from the booking overlap guard.
func IsExclusionViolation(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgExclusionViolation
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			strings.Contains(sqliteErr.Error(), OverlapConstraint)
	}

	return strings.Contains(err.Error(), OverlapConstraint)
}

// IsUniqueViolation reports whether err is a unique-key violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
