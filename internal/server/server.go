// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer — it connects handlers, middleware, and
// routes. main.go creates the config; New() assembles the dependency chain:
//
//	sqlite.DB → AuthService/PostService/ItemService → handlers → routes
//
// This is the "composition root" pattern — all dependencies are wired in one
// place rather than scattered across the codebase.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/postmarket/internal/auth"
	"github.com/sakif/postmarket/internal/handler"
	"github.com/sakif/postmarket/internal/middleware"
	sqliteRepo "github.com/sakif/postmarket/internal/repository/sqlite"
	"github.com/sakif/postmarket/internal/search"
	"github.com/sakif/postmarket/internal/service"
)

// Config holds server configuration, loaded from the environment in main.
type Config struct {
	Port              int
	DBPath            string
	JWTSecret         string // required; main refuses to start without it
	LineChannelID     string
	LineChannelSecret string
	LineCallbackURL   string
	FrontendURL       string // web client origin, for CORS and OAuth redirects
	RakutenAppID      string
}

// Server represents the HTTP server and all its dependencies.
// It owns the database connection and closes it on shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a new Server with the given config.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	POST   /api/auth/signup          → register (email+password)
//	POST   /api/auth/login           → password login
//	GET    /api/auth/me              → current user or {"user": null}
//	POST   /api/auth/logout          → clear the session cookie
//	GET    /api/auth/line            → redirect to LINE authorization
//	GET    /api/auth/line/callback   → LINE OAuth callback
//	GET    /api/posts                → list posts (public)
//	GET    /api/posts/{id}           → post detail (public)
//	POST   /api/posts                → create post          [auth]
//	DELETE /api/posts/{id}           → delete own post      [auth]
//	GET    /api/items/search         → item search proxy (public)
//	POST   /api/items                → attach item to post  [auth]
//	DELETE /api/items/{id}           → delete own item      [auth]
func (s *Server) setupRoutes() error {
	// === Global middleware — runs on every request, in order ===
	s.router.Use(chimiddleware.RequestID) // Adds X-Request-ID header
	s.router.Use(chimiddleware.RealIP)    // Extracts real IP from X-Forwarded-For
	s.router.Use(chimiddleware.Recoverer) // Recovers from panics, returns 500
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.CORS(s.config.FrontendURL))

	// === Auth plumbing ===
	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()
	line := auth.NewLineProvider(
		s.config.LineChannelID,
		s.config.LineChannelSecret,
		s.config.LineCallbackURL,
	)

	// === Services ===
	// Handlers never touch the database; services never touch HTTP.
	authService := service.NewAuthService(s.db, tokens, passwords, s.logger)
	postService := service.NewPostService(s.db, s.logger)
	itemService := service.NewItemService(s.db, s.db,
		search.NewRakutenClient(s.config.RakutenAppID), s.logger)

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authService, line, s.config.FrontendURL, s.logger)
	postHandler := handler.NewPostHandler(postService, s.logger)
	itemHandler := handler.NewItemHandler(itemService, s.logger)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
			r.With(optionalAuth).Get("/me", authHandler.HandleMe)
			r.Get("/line", authHandler.HandleLineLogin)
			r.Get("/line/callback", authHandler.HandleLineCallback)
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.HandleList)
			r.Get("/{id}", postHandler.HandleGet)
			r.With(requireAuth).Post("/", postHandler.HandleCreate)
			r.With(requireAuth).Delete("/{id}", postHandler.HandleDelete)
		})

		r.Route("/items", func(r chi.Router) {
			r.Get("/search", itemHandler.HandleSearch)
			r.With(requireAuth).Post("/", itemHandler.HandleCreate)
			r.With(requireAuth).Delete("/{id}", itemHandler.HandleDelete)
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
