package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConstraintViolation is matched by every ConstraintError.
var ErrConstraintViolation = errors.New("constraint violation")

// ConstraintError reports a uniqueness violation on Field.
type ConstraintError struct {
	Constraint string
	Field      string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation on %s (%s)", e.Field, e.Constraint)
}

func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraintViolation
}

const (
	constraintEmail    = "users_email_key"
	constraintFullName = "unique_full_name"

	pqUniqueViolation = "23505"
)

// constraintFields maps constraint names and SQLite column lists to the
// field reported back to callers.
var constraintFields = map[string]string{
	constraintEmail:                     "email",
	constraintFullName:                  "full_name",
	"users.email":                       "email",
	"users.first_name, users.last_name": "full_name",
}

// translateError converts driver specific uniqueness failures into a
// ConstraintError and leaves every other error untouched.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return &ConstraintError{
			Constraint: pqErr.Constraint,
			Field:      fieldFor(pqErr.Constraint),
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		// "UNIQUE constraint failed: users.first_name, users.last_name"
		columns := liteErr.Error()
		if _, after, ok := strings.Cut(columns, ":"); ok {
			columns = strings.TrimSpace(after)
		}
		return &ConstraintError{
			Constraint: columns,
			Field:      fieldFor(columns),
		}
	}

	return err
}

func fieldFor(constraint string) string {
	if field, ok := constraintFields[constraint]; ok {
		return field
	}
	return constraint
}
