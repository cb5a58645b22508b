package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"messagely/internal/auth"
	"messagely/internal/config"
	"messagely/internal/http_server/handlers/login"
	"messagely/internal/http_server/handlers/logout"
	messageshandler "messagely/internal/http_server/handlers/messages"
	"messagely/internal/http_server/handlers/register"
	usershandler "messagely/internal/http_server/handlers/users"
	"messagely/internal/http_server/middleware/identity"
	"messagely/internal/messages"
	rateLimit "messagely/internal/middleware/ratelimit"
	"messagely/internal/rabbitmq"
	"messagely/internal/storage/postgres"
	"messagely/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting messagely", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	revocations, err := redis.New(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer revocations.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer msgBroker.Close()

	authService := auth.New(
		log,
		storage,
		storage,
		revocations,
		cfg.Tokens.SessionTokenSecret,
		cfg.Tokens.SessionTokenTTL,
	)
	directory := messages.New(log, storage)

	router := setupRouter(log, authService, directory, msgBroker)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	authService *auth.Auth,
	directory *messages.Directory,
	msgBroker *rabbitmq.RabbitMQClient,
) *chi.Mux {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(identity.New(log, authService))

	r.With(rateLimit.Register()).Post("/register",
		register.New(log, validate, authService, msgBroker),
	)
	r.With(rateLimit.Login()).Post("/login",
		login.New(log, validate, authService, msgBroker),
	)
	r.With(rateLimit.Logout()).Post("/logout",
		logout.New(log, authService),
	)

	r.Get("/users", usershandler.NewList(log, authService))
	r.Get("/users/{username}", usershandler.NewGet(log, authService))
	r.Get("/users/{username}/to", usershandler.NewMessagesTo(log, directory))
	r.Get("/users/{username}/from", usershandler.NewMessagesFrom(log, directory))

	r.Get("/messages/{id}", messageshandler.NewGet(log, directory))
	r.With(rateLimit.SendMessage()).Post("/messages",
		messageshandler.NewSend(log, validate, directory, msgBroker),
	)
	r.Post("/messages/{id}/read", messageshandler.NewMarkRead(log, directory))

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
