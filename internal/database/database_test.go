package database

import (
	"strings"
	"testing"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://user:pw@host:5432/db?sslmode=disable", "pgx5://user:pw@host:5432/db?sslmode=disable"},
		{"postgresql://host/db", "pgx5://host/db"},
		{"pgx5://host/db", "pgx5://host/db"},
	}
	for _, tc := range tests {
		if got := migrateURL(tc.in); got != tc.want {
			t.Fatalf("migrateURL(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) < 4 {
		t.Fatalf("expected up/down pairs embedded, got %d files", len(entries))
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".up.sql") && !strings.HasSuffix(name, ".down.sql") {
			t.Fatalf("unexpected migration file %s", name)
		}
	}
}

func TestCacheSchemaStateWidth(t *testing.T) {
	ddl, err := migrationsFS.ReadFile("migrations/0001_cache_schema.up.sql")
	if err != nil {
		t.Fatalf("read cache schema migration: %v", err)
	}
	// region labels are free-form upstream, not two-letter codes
	if n := strings.Count(string(ddl), "state             VARCHAR(50)"); n != 2 {
		t.Fatalf("both cache tables must take VARCHAR(50) states, found %d", n)
	}
}
