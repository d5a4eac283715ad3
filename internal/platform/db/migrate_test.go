package db

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	files := fstest.MapFS{
		"010_flags.sql":   {Data: []byte("SELECT 10;")},
		"002_ledger.sql":  {Data: []byte("SELECT 2;")},
		"001_claims.sql":  {Data: []byte("SELECT 1;")},
		"README.md":       {Data: []byte("docs")},
		"notes.sql":       {Data: []byte("SELECT 0;")},
		"abc_invalid.sql": {Data: []byte("SELECT 0;")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	want := []struct {
		version int
		name    string
	}{{1, "001_claims.sql"}, {2, "002_ledger.sql"}, {10, "010_flags.sql"}}
	for i, w := range want {
		if migrations[i].Version != w.version || migrations[i].Name != w.name {
			t.Errorf("migration %d = %d/%s, want %d/%s", i, migrations[i].Version, migrations[i].Name, w.version, w.name)
		}
	}
	if migrations[0].SQL != "SELECT 1;" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}
