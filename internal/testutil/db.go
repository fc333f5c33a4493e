package testutil

import (
	"database/sql"
	"os"
	"strconv"
	"testing"

	"github.com/xxxsen/feedhub/internal/config"
	"github.com/xxxsen/feedhub/internal/db"
)

// OpenTestDB connects to the postgres named by TEST_DB_* and skips the test when
// TEST_DB_HOST is unset. Tables are truncated before returning.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	port := 5432
	if raw := os.Getenv("TEST_DB_PORT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			port = v
		}
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:         host,
		Port:         port,
		User:         envOr("TEST_DB_USER", "feedhub"),
		Password:     envOr("TEST_DB_PASSWORD", "feedhub_pass"),
		DBName:       envOr("TEST_DB_NAME", "feedhub_test"),
		SSLMode:      "disable",
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	const truncate = `TRUNCATE workspaces, users, workspace_members, boards, posts, stored_credentials, action_logs, import_runs`
	if _, err := conn.Exec(truncate); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
