package testutil

import (
	"database/sql"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/archoctopus/archoctopus-go/internal/db"
	"github.com/archoctopus/archoctopus-go/internal/sqlstore"
	"github.com/archoctopus/archoctopus-go/internal/store"
	"github.com/archoctopus/archoctopus-go/migrations"
)

// SetupTestDB creates an in-memory SQLite database and applies all migrations.
// It returns the database connection, ready for use in tests.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.InitDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})

	if err := db.RunMigrations(database, migrations.FS); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

// SetupTestSQLStore wraps a fresh test database in a serialized store that
// is closed when the test ends.
func SetupTestSQLStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	ss := sqlstore.New(SetupTestDB(t), zaptest.NewLogger(t))
	t.Cleanup(ss.Close)
	return ss
}

// SetupTestStore returns a typed repository over a fresh test database.
func SetupTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(SetupTestSQLStore(t))
}
