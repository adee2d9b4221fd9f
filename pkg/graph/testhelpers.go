package graph

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SkipIfNoDatabase skips the test if TEST_POSTGRES_PRIMARY environment variable is not set.
// This allows tests to run in CI where the database is available, but skip locally if not configured.
func SkipIfNoDatabase(t *testing.T) string {
	t.Helper()

	dbURL := os.Getenv("TEST_POSTGRES_PRIMARY")
	if dbURL == "" {
		t.Skip("Skipping test: TEST_POSTGRES_PRIMARY environment variable not set (database not available)")
	}

	return dbURL
}

// RequireDatabase gets the database connection or skips the test if not available.
// Returns a connected database instance.
func RequireDatabase(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := SkipIfNoDatabase(t)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}

	return db
}

// NewTestDB opens an in-memory SQLite database with the graph schema.
// Used by this package's tests and by the permission, version and search
// packages, which exercise the store through real SQL.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT,
			is_admin INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE groups (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE group_members (
			group_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (group_id, user_id)
		);

		CREATE TABLE nodes (
			id TEXT PRIMARY KEY,
			node_type TEXT NOT NULL,
			name TEXT NOT NULL,
			publication_status TEXT,
			is_based_on TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE owner_edges (
			node_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL
		);

		CREATE TABLE permission_edges (
			node_id TEXT NOT NULL,
			principal_id TEXT NOT NULL,
			principal_kind TEXT NOT NULL,
			level TEXT NOT NULL,
			UNIQUE(node_id, principal_id, level)
		);

		CREATE TABLE version_edges (
			previous_version_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			PRIMARY KEY (previous_version_id, node_id)
		);

		CREATE TABLE search_documents (
			node_id TEXT PRIMARY KEY,
			node_type TEXT NOT NULL,
			name TEXT NOT NULL,
			summary_text TEXT,
			owner_id TEXT,
			read_users TEXT NOT NULL DEFAULT '[]',
			write_users TEXT NOT NULL DEFAULT '[]',
			read_groups TEXT NOT NULL DEFAULT '[]',
			write_groups TEXT NOT NULL DEFAULT '[]',
			updated_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	return db
}
