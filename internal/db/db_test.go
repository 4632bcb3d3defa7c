package db_test

import (
	"path/filepath"
	"testing"

	"github.com/archoctopus/archoctopus-go/internal/db"
	"github.com/archoctopus/archoctopus-go/internal/testutil"
	"github.com/archoctopus/archoctopus-go/migrations"
)

func TestForeignKeyCascadeDelete(t *testing.T) {
	database := testutil.SetupTestDB(t)

	var foreignKeysEnabled int
	if err := database.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeysEnabled); err != nil {
		t.Fatalf("Failed to check foreign keys status: %v", err)
	}
	if foreignKeysEnabled != 1 {
		t.Errorf("Foreign keys should be enabled, got: %d", foreignKeysEnabled)
	}

	if _, err := database.Exec("INSERT INTO history (url) VALUES (?)", "https://example.com/a"); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if _, err := database.Exec("INSERT INTO urls (task_id, url) VALUES (1, 'https://example.com/1.jpg')"); err != nil {
		t.Fatalf("Failed to create item: %v", err)
	}
	if _, err := database.Exec("INSERT INTO tags (tag) VALUES ('brick')"); err != nil {
		t.Fatalf("Failed to create tag: %v", err)
	}
	if _, err := database.Exec("INSERT INTO history_related_tag (history_id, tag_id) VALUES (1, 1)"); err != nil {
		t.Fatalf("Failed to relate tag: %v", err)
	}

	if _, err := database.Exec("DELETE FROM history WHERE id = 1"); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}

	for _, table := range []string{"urls", "history_related_tag"} {
		var count int
		if err := database.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if count != 0 {
			t.Errorf("expected %s rows to cascade, got %d", table, count)
		}
	}
}

func TestItemPrimaryKey(t *testing.T) {
	database := testutil.SetupTestDB(t)
	database.Exec("INSERT INTO history (url) VALUES ('https://example.com/a')")

	if _, err := database.Exec("INSERT INTO urls (task_id, url) VALUES (1, 'x')"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := database.Exec("INSERT INTO urls (task_id, url) VALUES (1, 'x')"); err == nil {
		t.Error("expected duplicate (task_id, url) to violate the primary key")
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archoctopus.db")
	database, err := db.InitDB(path)
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, migrations.FS); err != nil {
		t.Fatalf("first migration run: %v", err)
	}
	if err := db.RunMigrations(database, migrations.FS); err != nil {
		t.Fatalf("second migration run: %v", err)
	}

	var cover string
	database.Exec("INSERT INTO history (url) VALUES ('u')")
	if err := database.QueryRow("SELECT cover FROM history").Scan(&cover); err != nil {
		t.Fatalf("cover column missing: %v", err)
	}
}
