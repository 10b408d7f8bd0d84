// Package app wires storage, repositories, services and HTTP handlers together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vedran77/hadra/internal/config"
	"github.com/vedran77/hadra/internal/repository/kv"
	"github.com/vedran77/hadra/internal/service"
	"github.com/vedran77/hadra/internal/storage"
	"github.com/vedran77/hadra/internal/transport/http/handlers"
	"github.com/vedran77/hadra/internal/transport/http/middleware"
)

// App is one running instance: one store and one active session.
type App struct {
	Store    *storage.Store
	Users    *service.UserService
	Auth     *service.AuthService
	Messages *service.MessageService

	cfg    *config.Config
	logger *slog.Logger
}

// New builds an App on top of backend. Call Start before serving.
func New(cfg *config.Config, backend storage.Backend, logger *slog.Logger) *App {
	store := storage.New(backend, logger)

	// Repositories
	userRepo := kv.NewUserRepo(store)
	messageRepo := kv.NewMessageRepo(store)
	sessionRepo := kv.NewSessionRepo(store)

	// Services
	authService := service.NewAuthService(userRepo, sessionRepo, cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, logger)
	messageService := service.NewMessageService(messageRepo, userRepo, authService, cfg.Media.EncodeTimeout, logger)

	return &App{
		Store:    store,
		Users:    service.NewUserService(userRepo),
		Auth:     authService,
		Messages: messageService,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start initialises the collections, seeds demo users and restores the session.
func (a *App) Start(ctx context.Context) error {
	if err := a.Store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if err := a.Auth.Startup(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	a.logger.Info("hadra ready", "session", a.Auth.State().String())
	return nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	authHandler := handlers.NewAuthHandler(a.Auth, a.logger)
	userHandler := handlers.NewUserHandler(a.Users, a.Auth, a.logger)
	messageHandler := handlers.NewMessageHandler(a.Messages, a.logger)

	auth := middleware.Auth(a.Auth)

	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	// Protected - Session
	mux.Handle("POST /api/v1/auth/logout", auth(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/v1/me", auth(http.HandlerFunc(authHandler.Me)))
	mux.Handle("PATCH /api/v1/me", auth(http.HandlerFunc(authHandler.UpdateProfile)))

	// Protected - Directory and friends
	mux.Handle("GET /api/v1/users", auth(http.HandlerFunc(userHandler.List)))
	mux.Handle("GET /api/v1/users/{id}", auth(http.HandlerFunc(userHandler.Get)))
	mux.Handle("GET /api/v1/friends", auth(http.HandlerFunc(userHandler.ListFriends)))
	mux.Handle("GET /api/v1/friends/{id}", auth(http.HandlerFunc(userHandler.IsFriend)))
	mux.Handle("PUT /api/v1/friends/{id}", auth(http.HandlerFunc(userHandler.AddFriend)))
	mux.Handle("DELETE /api/v1/friends/{id}", auth(http.HandlerFunc(userHandler.RemoveFriend)))

	// Protected - Messages and stories
	mux.Handle("GET /api/v1/conversations", auth(http.HandlerFunc(messageHandler.ListConversations)))
	mux.Handle("GET /api/v1/messages/{userID}", auth(http.HandlerFunc(messageHandler.List)))
	mux.Handle("POST /api/v1/messages/{userID}", auth(http.HandlerFunc(messageHandler.Send)))
	mux.Handle("GET /api/v1/stories", auth(http.HandlerFunc(messageHandler.ListStories)))
	mux.Handle("GET /api/v1/stories/friends", auth(http.HandlerFunc(messageHandler.ListFriendStories)))
	mux.Handle("POST /api/v1/stories", auth(http.HandlerFunc(messageHandler.CreateStory)))

	return middleware.CORS(mux)
}
