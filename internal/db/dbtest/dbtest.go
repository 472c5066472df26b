// Package dbtest provides migrated in-memory SQLite databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/ustoz-edu/apiserver/config"
	"github.com/ustoz-edu/apiserver/internal/db"
)

// Open returns a fresh, fully migrated in-memory database that is closed
// when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := config.Config{Database: config.DatabaseConfig{
		Driver: db.DriverSQLite,
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	}}

	conn, err := db.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := db.Migrate(conn, db.DriverSQLite); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return conn
}
