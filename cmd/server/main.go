package main

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

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"market-live/internal"
	"market-live/moderation"
	"market-live/notify"
	"market-live/observability"
	"market-live/repositories"
	"market-live/runtime"
	"market-live/runtime/workers"
	"market-live/services"
	"market-live/transport"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern ensures all 'defer' statements (like database cleanup) execute before the
// program exits, and keeps the initialization logic testable apart from main.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Moderation
	wordlists, err := moderation.LoadWordlists()
	if err != nil {
		return exitRuntime, fmt.Errorf("wordlist loading failed: %w", err)
	}
	moderator, err := moderation.NewModerator(wordlists.Words, charReplacement)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderator init failed: %w", err)
	}
	logger.Info("Moderation ready", "languages", wordlists.Languages, "words", len(wordlists.Words))

	// 4. Core components
	monitoring := observability.NewMonitoringManager(logger)
	registry := runtime.NewRegistry()

	chatRepository := repositories.NewChatRepository(db, logger)
	messageRepository := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	counterRepository := repositories.NewCounterRepository(db)
	notificationRepository := repositories.NewNotificationRepository(db)
	userRepository := repositories.NewUserRepository(db)

	dispatcher := notify.NewDispatcher(logger, registry, notificationRepository, monitoring)
	router := runtime.NewRouter(
		logger, registry,
		chatRepository, messageRepository, counterRepository,
		dispatcher, &moderator, monitoring,
	)

	authService := services.NewAuthService(userRepository, config.AuthTokenDuration)
	chatService := services.NewChatService(chatRepository, router)
	notificationService := services.NewNotificationService(notificationRepository, counterRepository)

	limiter := transport.NewRateLimiter(transport.RateLimitConfig{
		WindowSize:    config.RateLimitWindow,
		MaxMessages:   config.RateLimitMaxMessages,
		CleanupPeriod: config.RateLimitCleanup,
	})
	defer limiter.Stop()

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Supervision
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	reaper := workers.NewReaperWorker(logger, registry, monitoring, config.ReaperInterval, config.IdleConnectionWindow)
	go sup.Add(reaper).Run(ctx)

	if config.DebugPort > 0 {
		logger.Info("Debug inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
		internal.StartDebugServer(db, config.DebugPort, nil,
			func() map[string]any { return monitoring.GetLatest().AsMap() },
			func() any { return registry.Snapshot() },
		)
	}

	// 7. HTTP Server
	wsHandler := transport.ServeWs(registry, chatService, limiter, monitoring, config.ConnectionBufferSize, logger)
	server := transport.NewServer(authService, chatService, notificationService, wsHandler, logger)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: server.Handler()}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	// The execution blocks here until either a signal is received or the server crashes.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 9. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
