package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "modernc.org/sqlite"
)

// backupSQLite writes a consistent point-in-time copy of the database.
// VACUUM INTO handles WAL mode correctly, so the live service can keep
// writing while the backup runs.
func backupSQLite(ctx context.Context, sourcePath, destPath string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", sourcePath))
	if err != nil {
		return fmt.Errorf("backup: failed to open source database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("backup: failed to ping source database: %w", err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("backup: failed to back up database: %w", err)
	}
	return nil
}

// verifyBackup runs SQLite's integrity check against a backup file.
func verifyBackup(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("backup: failed to open backup: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("backup: failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup: integrity check failed: %s", result)
	}
	return nil
}

// restoreSQLite copies a verified backup over the target database file.
func restoreSQLite(ctx context.Context, backupPath, targetPath string) error {
	if err := verifyBackup(ctx, backupPath); err != nil {
		return err
	}

	src, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("backup: failed to open backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(targetPath)
	if err != nil {
		return fmt.Errorf("backup: failed to create target file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("backup: failed to copy backup: %w", err)
	}
	if err := dst.Sync(); err != nil {
		return fmt.Errorf("backup: failed to sync target file: %w", err)
	}

	return verifyBackup(ctx, targetPath)
}
