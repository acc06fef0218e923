package data

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when the addressed row does not exist or is soft deleted
	ErrNotFound = errors.New("not found")
	// ErrImmutableUser is returned when an edit or delete targets a seeded immutable user
	ErrImmutableUser = errors.New("user is immutable")
	// ErrConflict is returned when a unique name is already taken
	ErrConflict = errors.New("already exists")
	// ErrNotRemovable is returned when deleting one of the default custom fields of a project
	ErrNotRemovable = errors.New("field cannot be removed")
)

// isUniqueViolation reports whether err is a PostgreSQL unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isForeignKeyViolation reports whether err is a PostgreSQL foreign_key_violation
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
