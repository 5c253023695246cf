// Package backup provides scheduled backups of the SQLite database with
// integrity verification and tiered retention. PostgreSQL deployments
// should use pg_dump instead.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("backup: service is already running")

// filePrefix names backup files; the timestamp includes microseconds so
// rapid successive backups never collide.
const filePrefix = "angel-backup-"

// Config holds the backup service configuration.
type Config struct {
	// DBPath is the SQLite database file to back up.
	DBPath string

	// Dir is where backup files are written.
	Dir string

	// Interval between scheduled backups (default 1h).
	Interval time.Duration

	// Keep controls tiered retention.
	Keep Retention

	// Verify runs an integrity check on every backup (recommended).
	Verify bool
}

// Result describes one completed backup.
type Result struct {
	Path     string
	Size     int64
	Duration time.Duration
	Verified bool
}

// Info is the metadata of a stored backup file.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Service performs immediate and scheduled database backups.
type Service struct {
	cfg Config

	mu      sync.Mutex
	running bool
	last    time.Time
}

// NewService validates the config and prepares the backup directory.
func NewService(cfg Config) (*Service, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("backup: database path is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("backup: backup directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	cfg.Keep = cfg.Keep.withDefaults()

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("backup: failed to create backup directory: %w", err)
	}

	return &Service{cfg: cfg}, nil
}

// Run performs backups at the configured interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Printf("Backup service started: interval=%v, dir=%s", s.cfg.Interval, s.cfg.Dir)

	for {
		select {
		case <-ctx.Done():
			log.Println("Backup service stopping")
			return ctx.Err()
		case <-ticker.C:
			result, err := s.BackupNow(ctx)
			if err != nil {
				log.Printf("Scheduled backup failed: %v", err)
				continue
			}
			log.Printf("Backup completed: path=%s, size=%d bytes, duration=%v, verified=%v",
				result.Path, result.Size, result.Duration, result.Verified)
		}
	}
}

// BackupNow creates one backup, verifies it if configured, and applies
// the retention policy.
func (s *Service) BackupNow(ctx context.Context) (*Result, error) {
	start := time.Now()

	if _, err := os.Stat(s.cfg.DBPath); err != nil {
		return nil, fmt.Errorf("backup: database not found: %w", err)
	}

	name := filePrefix + start.Format("20060102-150405.000000") + ".db"
	path := filepath.Join(s.cfg.Dir, name)

	if err := backupSQLite(ctx, s.cfg.DBPath, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to stat backup: %w", err)
	}

	result := &Result{Path: path, Size: info.Size(), Duration: time.Since(start)}

	if s.cfg.Verify {
		if err := verifyBackup(ctx, path); err != nil {
			return nil, err
		}
		result.Verified = true
	}

	s.mu.Lock()
	s.last = start
	s.mu.Unlock()

	// Retention failures do not fail the backup itself.
	if err := applyRetention(s.cfg.Dir, s.cfg.Keep); err != nil {
		log.Printf("Warning: failed to apply retention policy: %v", err)
	}

	return result, nil
}

// List returns the stored backups, newest first.
func (s *Service) List() ([]Info, error) {
	return listBackups(s.cfg.Dir)
}

// Restore replaces the live database with a backup. The web service must
// be stopped first; a pre-restore copy of the current database is kept
// until the restore succeeds.
func (s *Service) Restore(ctx context.Context, backupPath string) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return errors.New("backup: cannot restore while the backup service is running")
	}

	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup: backup not found: %w", err)
	}

	preRestore := s.cfg.DBPath + ".pre-restore"
	if _, err := os.Stat(s.cfg.DBPath); err == nil {
		if err := backupSQLite(ctx, s.cfg.DBPath, preRestore); err != nil {
			return fmt.Errorf("backup: failed to create pre-restore copy: %w", err)
		}
		defer os.Remove(preRestore)
	}

	if err := restoreSQLite(ctx, backupPath, s.cfg.DBPath); err != nil {
		if _, statErr := os.Stat(preRestore); statErr == nil {
			if rbErr := restoreSQLite(ctx, preRestore, s.cfg.DBPath); rbErr != nil {
				return fmt.Errorf("backup: restore and rollback both failed: %v (restore error: %w)", rbErr, err)
			}
			return fmt.Errorf("backup: restore failed, rolled back to previous state: %w", err)
		}
		return err
	}

	log.Printf("Database restored from %s", backupPath)
	return nil
}
