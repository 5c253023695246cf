// Command angel-backup runs scheduled SQLite backups for the chat
// database, or performs one-off backup, restore and list operations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/funecosystem/angel-ai/internal/backup"
	"github.com/funecosystem/angel-ai/internal/config"
)

var (
	dbPath    = flag.String("db", "", "Path to database file (overrides config)")
	backupDir = flag.String("backup-dir", "", "Backup directory (overrides config)")
	interval  = flag.Duration("interval", 0, "Backup interval (overrides config)")
	verify    = flag.Bool("verify", true, "Verify backups after creation")
	oneshot   = flag.Bool("oneshot", false, "Perform a single backup and exit")
	restore   = flag.String("restore", "", "Restore database from backup file and exit")
	listCmd   = flag.Bool("list", false, "List all available backups and exit")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Storage.StorageEngine != "sqlite" {
		log.Fatalf("angel-backup only supports the sqlite engine; use pg_dump for postgres")
	}

	dbPathFinal := filepath.Join(cfg.Storage.DataPath, "angel.db")
	if *dbPath != "" {
		dbPathFinal = *dbPath
	}
	backupDirFinal := cfg.Backup.BackupPath
	if *backupDir != "" {
		backupDirFinal = *backupDir
	}
	intervalFinal := cfg.Backup.Interval
	if *interval > 0 {
		intervalFinal = *interval
	}

	service, err := backup.NewService(backup.Config{
		DBPath:   dbPathFinal,
		Dir:      backupDirFinal,
		Interval: intervalFinal,
		Verify:   *verify,
	})
	if err != nil {
		log.Fatalf("Failed to create backup service: %v", err)
	}

	ctx := context.Background()

	switch {
	case *restore != "":
		if err := service.Restore(ctx, *restore); err != nil {
			log.Fatalf("Restore failed: %v", err)
		}
		log.Println("Restore completed")

	case *listCmd:
		backups, err := service.List()
		if err != nil {
			log.Fatalf("Failed to list backups: %v", err)
		}
		if len(backups) == 0 {
			fmt.Println("No backups found")
			return
		}
		for _, b := range backups {
			fmt.Printf("%s  %s  %d bytes\n", b.Timestamp.Format(time.RFC3339), b.Path, b.Size)
		}

	case *oneshot:
		result, err := service.BackupNow(ctx)
		if err != nil {
			log.Fatalf("Backup failed: %v", err)
		}
		log.Printf("Backup completed: path=%s, size=%d bytes, verified=%v",
			result.Path, result.Size, result.Verified)

	default:
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			log.Println("Shutting down...")
			cancel()
		}()

		if err := service.Run(runCtx); err != nil && err != context.Canceled {
			log.Fatalf("Backup service error: %v", err)
		}
	}
}
