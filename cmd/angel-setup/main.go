package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/funecosystem/angel-ai/internal/auth"
	"github.com/funecosystem/angel-ai/internal/config"
	"github.com/funecosystem/angel-ai/internal/storage"
	"github.com/funecosystem/angel-ai/internal/storage/postgres"
	"github.com/funecosystem/angel-ai/internal/storage/sqlite"
	"github.com/funecosystem/angel-ai/pkg/types"
)

func main() {
	_ = godotenv.Load()

	for _, arg := range os.Args[1:] {
		if arg == "--verify" {
			runVerify()
			return
		}
	}

	printBanner()

	fmt.Println("Welcome to Angel AI Setup!")
	fmt.Println("This tool initializes the database and creates the first admin account.")
	fmt.Println()

	cfg, err := config.LoadConfig()
	if err != nil {
		fail("Failed to load config: %v", err)
	}

	if cfg.Security.SessionSecret == "" {
		secret := generateSecret()
		envPath := ".env"
		if err := appendEnvVar(envPath, "ANGEL_SESSION_SECRET", secret); err != nil {
			fail("Failed to write %s: %v", envPath, err)
		}
		color.Green("OK: Generated session secret and saved it to %s", envPath)
	} else {
		color.Green("OK: Session secret already configured")
	}

	store, err := openStore(cfg)
	if err != nil {
		fail("Failed to initialize storage: %v", err)
	}
	defer store.Close()
	color.Green("OK: Database ready (%s)", cfg.Storage.StorageEngine)

	if _, err := os.Stat(cfg.Storage.MigrationsDir); err == nil {
		if err := store.RunMigrations(cfg.Storage.MigrationsDir); err != nil {
			fail("Failed to apply migrations: %v", err)
		}
		color.Green("OK: Migrations applied")
	}

	fmt.Println()
	email := ask("Admin email", "")
	if email == "" {
		fail("An admin email is required")
	}
	password := ask("Admin password (min 8 characters)", "")
	displayName := ask("Admin display name", "Admin")

	if err := createAdmin(context.Background(), store, email, password, displayName); err != nil {
		fail("Failed to create admin account: %v", err)
	}
	color.Green("OK: Admin account created for %s", email)

	fmt.Printf(`
Setup complete!

Start the web service:
  ./angel-web

Then open: http://%s:%d

`, cfg.Server.Host, cfg.Server.Port)
}

func printBanner() {
	color.Cyan(`
    _                      _      _    ___
   / \   _ __   __ _  ___| |    / \  |_ _|
  / _ \ | '_ \ / _` + "`" + ` |/ _ \ |   / _ \  | |
 / ___ \| | | | (_| |  __/ |  / ___ \ | |
/_/   \_\_| |_|\__, |\___|_| /_/   \_\___|
               |___/
`)
	fmt.Println("Scripted companion chat for the FUN Ecosystem")
}

// runVerify performs a health check of the installation.
func runVerify() {
	fmt.Println("Angel AI Setup Verification")
	fmt.Println("===========================")
	fmt.Println()

	statusOK := true

	cfg, err := config.LoadConfig()
	if err != nil {
		color.Red("Config:       ✗ %v", err)
		os.Exit(1)
	}

	if cfg.Security.SessionSecret != "" {
		color.Green("Secret:       ✓ Configured")
	} else {
		color.Red("Secret:       ✗ ANGEL_SESSION_SECRET not set")
		statusOK = false
	}

	if cfg.Storage.StorageEngine == "sqlite" {
		dataDir := cfg.Storage.DataPath
		if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
			testFile := filepath.Join(dataDir, ".angel-write-test")
			if err := os.WriteFile(testFile, []byte("test"), 0644); err == nil {
				os.Remove(testFile)
				color.Green("Data path:    ✓ %s (writable)", dataDir)
			} else {
				color.Red("Data path:    ✗ %s (not writable)", dataDir)
				statusOK = false
			}
		} else {
			color.Red("Data path:    ✗ %s (does not exist)", dataDir)
			statusOK = false
		}
	}

	store, err := openStore(cfg)
	if err != nil {
		color.Red("Database:     ✗ %v", err)
		statusOK = false
	} else {
		color.Green("Database:     ✓ Reachable (%s)", cfg.Storage.StorageEngine)
		store.Close()
	}

	fmt.Println()
	if statusOK {
		color.Green("Status:       READY")
		os.Exit(0)
	}
	color.Red("Status:       NOT READY")
	fmt.Println()
	fmt.Println("Run angel-setup to install missing components.")
	os.Exit(1)
}

// ask asks a free-text question with an optional default.
func ask(question, defaultVal string) string {
	scanner := bufio.NewScanner(os.Stdin)
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}
	scanner.Scan()
	val := strings.TrimSpace(scanner.Text())
	if val == "" {
		return defaultVal
	}
	return val
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.StorageEngine == "postgres" {
		return postgres.New(cfg.Storage.PostgresDSN)
	}
	if err := os.MkdirAll(cfg.Storage.DataPath, 0755); err != nil {
		return nil, err
	}
	return sqlite.New(filepath.Join(cfg.Storage.DataPath, "angel.db"))
}

// createAdmin stores a new admin account.
func createAdmin(ctx context.Context, store storage.UserStore, email, password, displayName string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return store.CreateUser(ctx, &types.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		DisplayName:  displayName,
		IsAdmin:      true,
	})
}

// generateSecret returns a random 32-byte hex string for HMAC signing.
func generateSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		fail("Failed to generate random secret: %v", err)
	}
	return hex.EncodeToString(buf)
}

// appendEnvVar appends KEY=value to the env file, creating it if needed.
func appendEnvVar(path, key, value string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s=%s\n", key, value)
	return err
}

func fail(format string, args ...any) {
	color.Red("ERROR: "+format, args...)
	os.Exit(1)
}
