package graph

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all graph store migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create principal tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(255) PRIMARY KEY,
					username VARCHAR(255) NOT NULL,
					email VARCHAR(255),
					is_admin BOOLEAN NOT NULL DEFAULT FALSE
				);

				CREATE TABLE IF NOT EXISTS groups (
					id VARCHAR(255) PRIMARY KEY,
					name VARCHAR(255) NOT NULL
				);

				CREATE TABLE IF NOT EXISTS group_members (
					group_id VARCHAR(255) NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					PRIMARY KEY (group_id, user_id)
				);

				CREATE INDEX idx_group_members_user_id ON group_members(user_id);
			`,
		},
		{
			Version:     2,
			Description: "Create nodes table",
			SQL: `
				CREATE TABLE IF NOT EXISTS nodes (
					id VARCHAR(255) PRIMARY KEY,
					node_type VARCHAR(50) NOT NULL,
					name VARCHAR(255) NOT NULL,
					publication_status VARCHAR(50),
					is_based_on VARCHAR(255),
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX idx_nodes_node_type ON nodes(node_type);
				CREATE INDEX idx_nodes_is_based_on ON nodes(is_based_on);
			`,
		},
		{
			Version:     3,
			Description: "Create ownership and permission edges",
			SQL: `
				CREATE TABLE IF NOT EXISTS owner_edges (
					node_id VARCHAR(255) PRIMARY KEY REFERENCES nodes(id) ON DELETE CASCADE,
					user_id VARCHAR(255) NOT NULL REFERENCES users(id)
				);

				CREATE INDEX idx_owner_edges_user_id ON owner_edges(user_id);

				CREATE TABLE IF NOT EXISTS permission_edges (
					node_id VARCHAR(255) NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
					principal_id VARCHAR(255) NOT NULL,
					principal_kind VARCHAR(10) NOT NULL,
					level VARCHAR(10) NOT NULL,
					UNIQUE(node_id, principal_id, level)
				);

				CREATE INDEX idx_permission_edges_node_id ON permission_edges(node_id);
				CREATE INDEX idx_permission_edges_principal_id ON permission_edges(principal_id);
			`,
		},
		{
			Version:     4,
			Description: "Create version edges",
			SQL: `
				CREATE TABLE IF NOT EXISTS version_edges (
					previous_version_id VARCHAR(255) NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
					node_id VARCHAR(255) NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
					PRIMARY KEY (previous_version_id, node_id)
				);

				CREATE INDEX idx_version_edges_node_id ON version_edges(node_id);
			`,
		},
	}
}

// RunMigrations applies pending graph migrations in order. Applied
// versions are recorded in graph_migrations so reruns skip them, which
// keeps a restart against an existing database safe.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS graph_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM graph_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, m := range GetMigrations() {
		if applied[m.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO graph_migrations (version, description) VALUES ($1, $2)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
