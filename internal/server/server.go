// Package server is the composition root: it wires the storage layers, the
// GitHub client, the services, and the HTTP surface together, and owns the
// listen/shutdown lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/nhasan/ghtracker/internal/auth"
	"github.com/nhasan/ghtracker/internal/config"
	"github.com/nhasan/ghtracker/internal/github"
	"github.com/nhasan/ghtracker/internal/handler"
	"github.com/nhasan/ghtracker/internal/middleware"
	"github.com/nhasan/ghtracker/internal/oauthstate"
	sqliteRepo "github.com/nhasan/ghtracker/internal/repository/sqlite"
	"github.com/nhasan/ghtracker/internal/service"
)

// Server owns the router and the long-lived connections (SQLite, Redis),
// which it closes on shutdown.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	redis  *redis.Client
	states *oauthstate.Manager
}

// New assembles the full dependency graph. Every collaborator is constructed
// eagerly so a bad configuration fails at startup, not on first request.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
		states: oauthstate.NewManager(redisClient, logger),
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	cfg := s.cfg

	ghClient := github.NewClient(github.Config{
		ClientID:      cfg.GitHubClientID,
		ClientSecret:  cfg.GitHubClientSecret,
		RedirectURI:   cfg.GitHubRedirectURI,
		WebhookURL:    cfg.WebhookURL,
		WebhookSecret: cfg.GitHubWebhookSecret,
	}, s.logger)

	tokens, err := auth.NewTokenService(
		cfg.JWTSecret,
		time.Duration(cfg.AccessTokenExpireMinutes)*time.Minute,
		time.Duration(cfg.RefreshTokenExpireDays)*24*time.Hour,
	)
	if err != nil {
		// Config validation already enforced the secret length; reaching
		// this means the two checks disagree.
		panic(fmt.Sprintf("token service construction: %v", err))
	}

	users := service.NewUserService(s.db, ghClient, s.logger)
	notifications := service.NewNotificationService(s.db, s.logger)
	verifier := auth.NewSignatureVerifier(cfg.GitHubWebhookSecret)

	authHandler := handler.NewAuthHandler(ghClient, tokens, s.states, users, s.logger)
	activityHandler := handler.NewActivityHandler(ghClient, s.logger)
	webhookHandler := handler.NewWebhookHandler(ghClient, verifier, users, notifications, s.logger)

	guard := auth.RequireAuth(tokens, users, s.logger)

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.SecurityHeaders)

	var rateLimit func(http.Handler) http.Handler
	if cfg.RateLimitEnabled {
		rateLimit = middleware.NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst).Middleware
	} else {
		rateLimit = func(next http.Handler) http.Handler { return next }
	}

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		// Optional identity first so the rate limiter can key authenticated
		// callers by user instead of by address.
		r.Use(auth.OptionalAuth(tokens, users), rateLimit)
		r.Get("/github/login", authHandler.HandleLogin)
		r.Get("/github/callback", authHandler.HandleCallback)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/logout", authHandler.HandleLogout)
		r.With(guard).Get("/me", authHandler.HandleMe)
	})

	r.Route("/activity", func(r chi.Router) {
		r.Use(guard, rateLimit)
		r.Get("/repositories", activityHandler.HandleRepositories)
		r.Get("/events", activityHandler.HandleEvents)
	})

	r.Route("/webhooks", func(r chi.Router) {
		// The ingest endpoint authenticates by HMAC, and GitHub's delivery
		// bursts must never be throttled into retries.
		r.Post("/github", webhookHandler.HandleInbound)

		r.Group(func(r chi.Router) {
			r.Use(guard, rateLimit)
			r.Post("/setup/{owner}/{repo}", webhookHandler.HandleSetup)
			r.Get("/list/{owner}/{repo}", webhookHandler.HandleList)
			r.Delete("/remove/{owner}/{repo}/{hookID}", webhookHandler.HandleRemove)

			r.Get("/notifications", webhookHandler.HandleNotifications)
			r.Post("/notifications/mark-all-processed", webhookHandler.HandleMarkAllProcessed)
			r.Post("/notifications/{id}/mark-processed", webhookHandler.HandleMarkProcessed)
			r.Delete("/notifications/{id}", webhookHandler.HandleDeleteNotification)
		})
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"name":%q,"docs":"/health"}`, s.cfg.AppName)
}

// handleHealth reports liveness of the process and its two stores. Any
// degraded dependency turns the whole answer 503 so a load balancer stops
// routing here.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbUp := s.db.HealthCheck()
	redisUp := s.states.HealthCheck(r.Context())

	status := http.StatusOK
	overall := "healthy"
	if !dbUp || !redisUp {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"status":%q,"database":%t,"redis":%t}`, overall, dbUp, redisUp)
}

// Router exposes the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests, close
// the stores.
func (s *Server) Start() error {
	defer func() {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("closing redis client", slog.String("error", err.Error()))
		}
		if err := s.db.Close(); err != nil {
			s.logger.Error("closing database", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
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
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
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
