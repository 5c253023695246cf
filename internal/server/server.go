// Package server provides HTTP server initialization and lifecycle
// management for the Angel AI web API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/funecosystem/angel-ai/internal/config"
	"github.com/funecosystem/angel-ai/internal/fetcher"
	"github.com/funecosystem/angel-ai/internal/services"
	"github.com/funecosystem/angel-ai/web/handlers"
)

// Deps bundles the services the HTTP layer exposes.
type Deps struct {
	Auth      *services.AuthService
	Chat      *services.ChatService
	Knowledge *services.KnowledgeService
	Settings  *services.SettingsService
	Fetcher   *fetcher.Fetcher
}

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start initializes and starts the HTTP server. It returns the actual
// address being listened on (useful for testing with port 0) and the
// WebSocketHub, which is also the Broadcaster the chat service should
// publish through.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (string, *handlers.WebSocketHub) {
	mux := http.NewServeMux()

	wsHub := handlers.NewWebSocketHub(deps.Auth, deps.Chat)
	go wsHub.Run()

	rateLimiter := handlers.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	authHandlers := handlers.NewAuthHandlers(deps.Auth)
	chatHandlers := handlers.NewChatHandlers(deps.Chat)
	knowledgeHandlers := handlers.NewKnowledgeHandlers(deps.Knowledge)
	settingsHandlers := handlers.NewSettingsHandlers(deps.Settings)
	fetchHandlers := handlers.NewFetchHandlers(deps.Fetcher)

	// Public routes: registration, login and the health probe.
	mux.HandleFunc("/api/auth/register", authHandlers.Register)
	mux.HandleFunc("/api/auth/login", authHandlers.Login)
	mux.HandleFunc("/api/auth/logout", authHandlers.Logout)
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":"1.0.0","fetcher_circuit":%q}`,
			deps.Fetcher.BreakerState())
	})

	// Routes for any signed-in user.
	userMux := http.NewServeMux()
	userMux.HandleFunc("/api/auth/me", authHandlers.Me)
	userMux.HandleFunc("/api/persona/greeting", chatHandlers.Greeting)
	userMux.HandleFunc("/api/conversations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			chatHandlers.ListConversations(w, r)
		case http.MethodPost:
			chatHandlers.SendMessage(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	userMux.HandleFunc("/api/conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			chatHandlers.GetConversation(w, r)
		case http.MethodPatch:
			chatHandlers.RenameConversation(w, r)
		case http.MethodDelete:
			chatHandlers.DeleteConversation(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	userMux.HandleFunc("/api/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			chatHandlers.EditMessage(w, r)
		case http.MethodDelete:
			chatHandlers.DeleteMessage(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	userMux.HandleFunc("/api/fetch-url", fetchHandlers.FetchURL)

	// Admin routes: knowledge base curation.
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("/api/knowledge", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			knowledgeHandlers.List(w, r)
		case http.MethodPost:
			knowledgeHandlers.Create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	adminMux.HandleFunc("/api/knowledge/import", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			knowledgeHandlers.Import(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	adminMux.HandleFunc("/api/knowledge/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			knowledgeHandlers.Get(w, r)
		case http.MethodPut:
			knowledgeHandlers.Update(w, r)
		case http.MethodDelete:
			knowledgeHandlers.Delete(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	adminMux.HandleFunc("/api/settings/persona", settingsHandlers.Persona)
	userMux.Handle("/api/knowledge", handlers.RequireAdmin(adminMux))
	userMux.Handle("/api/knowledge/", handlers.RequireAdmin(adminMux))
	userMux.Handle("/api/settings/", handlers.RequireAdmin(adminMux))

	mux.Handle("/api/", handlers.RequireUser(userMux, deps.Auth))

	// WebSocket endpoint; the hub authenticates the upgrade itself.
	mux.Handle("/ws", wsHub)

	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		wsHub.Stop()
	}()

	return actualAddr, wsHub
}
