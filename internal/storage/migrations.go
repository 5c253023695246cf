package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// migrationFile is a single NNN_name.up.sql migration.
type migrationFile struct {
	version int
	name    string
	path    string
}

// ApplyMigrations applies all pending NNN_name.up.sql files from dir in
// ascending version order, tracking the current version in a
// schema_migrations table. It is a no-op when the schema is up to date.
// This implementation is CGO-free and works with both modernc.org/sqlite
// and lib/pq.
func ApplyMigrations(db *sql.DB, dir string) error {
	if db == nil {
		return fmt.Errorf("migrations: database connection is required")
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("migrations: failed to create schema table: %w", err)
	}

	files, err := loadMigrationFiles(dir)
	if err != nil {
		return err
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("migrations: failed to query current version: %w", err)
	}

	for _, m := range files {
		if m.version <= current {
			continue
		}

		stmts, err := os.ReadFile(m.path)
		if err != nil {
			return fmt.Errorf("migrations: failed to read %s: %w", m.path, err)
		}

		if _, err := db.Exec(string(stmts)); err != nil {
			return fmt.Errorf("migrations: failed to apply version %d (%s): %w", m.version, m.name, err)
		}

		// The version is interpolated directly so the statement works with
		// both sqlite and postgres placeholder styles.
		if _, err := db.Exec(fmt.Sprintf("INSERT INTO schema_migrations (version) VALUES (%d)", m.version)); err != nil {
			return fmt.Errorf("migrations: failed to record version %d: %w", m.version, err)
		}
	}

	return nil
}

// loadMigrationFiles reads NNN_name.up.sql files from dir, sorted by version.
func loadMigrationFiles(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: failed to read directory %s: %w", dir, err)
	}

	var files []migrationFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		idx := strings.Index(name, "_")
		if idx < 0 {
			continue
		}

		version, err := strconv.Atoi(name[:idx])
		if err != nil {
			continue // Skip files without a numeric prefix
		}

		files = append(files, migrationFile{
			version: version,
			name:    strings.TrimSuffix(name[idx+1:], ".up.sql"),
			path:    filepath.Join(dir, name),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
