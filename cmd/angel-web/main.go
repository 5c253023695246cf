package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/funecosystem/angel-ai/internal/auth"
	"github.com/funecosystem/angel-ai/internal/config"
	"github.com/funecosystem/angel-ai/internal/engine"
	"github.com/funecosystem/angel-ai/internal/fetcher"
	"github.com/funecosystem/angel-ai/internal/server"
	"github.com/funecosystem/angel-ai/internal/services"
	"github.com/funecosystem/angel-ai/internal/storage"
	"github.com/funecosystem/angel-ai/internal/storage/postgres"
	"github.com/funecosystem/angel-ai/internal/storage/sqlite"
)

func main() {
	// A missing .env file is fine; env vars still apply.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Security.SessionSecret == "" {
		log.Fatal("ANGEL_SESSION_SECRET is required (run angel-setup to generate one)")
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	eng, err := engine.New()
	if err != nil {
		log.Fatalf("Failed to load response rules: %v", err)
	}

	tokens, err := auth.NewManager(cfg.Security.SessionSecret, cfg.Security.SessionTTL)
	if err != nil {
		log.Fatalf("Failed to initialize session tokens: %v", err)
	}

	fetch := fetcher.New(cfg.Fetch.Timeout)
	authService := services.NewAuthService(store, tokens)
	chatService := services.NewChatService(store, eng, nil, cfg.Chat.TypingDelay)
	knowledgeService := services.NewKnowledgeService(store, fetch)
	settingsService := services.NewSettingsService(store, services.PersonaSettings{Name: cfg.Persona.Name})

	// Persisted persona settings win over the environment.
	if persona, err := settingsService.Persona(context.Background()); err == nil {
		cfg.Persona.Name = persona.Name
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, wsHub := server.Start(ctx, cfg, server.Deps{
		Auth:      authService,
		Chat:      chatService,
		Knowledge: knowledgeService,
		Settings:  settingsService,
		Fetcher:   fetch,
	})
	chatService.SetBroadcaster(wsHub)

	log.Printf("%s running at http://%s", cfg.Persona.Name, addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openStore picks the storage backend from the config.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0755); err != nil {
			return nil, err
		}
		return sqlite.New(filepath.Join(cfg.Storage.DataPath, "angel.db"))
	}
}
