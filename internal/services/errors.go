package services

import (
	"errors"
	"sort"
	"strings"
)

// ErrAuthenticationFailed hides whether the email, the password or the
// account state was wrong.
var ErrAuthenticationFailed = errors.New("invalid credentials")

// ErrProfileImageUnresolvable is returned when a token cannot be issued
// because the profile image URL cannot be resolved.
var ErrProfileImageUnresolvable = errors.New("profile image url cannot be resolved")

// ValidationError carries field level messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
}

func (e *ValidationError) empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, field+": "+e.Fields[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
