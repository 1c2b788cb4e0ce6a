package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"

	"market-live/client"
	"market-live/transport"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	ServerURL string `envconfig:"SERVER_URL" default:"http://localhost:8080"`
	WsURL     string `envconfig:"WS_URL" default:"ws://localhost:8080/ws"`
	Email     string `envconfig:"LIVE_EMAIL"`
	Password  string `envconfig:"LIVE_PASSWORD"`
	// RememberMe selects the persistent token store so restarts can skip
	// the password prompt.
	RememberMe bool   `envconfig:"REMEMBER_ME" default:"false"`
	TokenPath  string `envconfig:"TOKEN_PATH" default:".market-live/token"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"INFO"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens := client.StoreFor(config.RememberMe, config.TokenPath)

	sync := client.NewSynchronizer(config.ServerURL, config.WsURL, tokens, printEnvelope, log)
	sync.OnStateChange(func(state client.State) {
		fmt.Printf("[%s]\n", state)
		if state == client.StateLive {
			snapshot := sync.Snapshot()
			fmt.Printf("    unread total: %d\n", snapshot.TotalUnread)
		}
	})

	// 3. Authenticate when credentials are provided; otherwise rely on a
	// previously stored token.
	if config.Email != "" {
		if err := sync.Login(config.Email, config.Password); err != nil {
			return exitRuntime, fmt.Errorf("login failed: %w", err)
		}
		log.Info("Authenticated", "email", config.Email)
	}

	// 4. Run the connection loop until interrupted.
	err := sync.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return exitRuntime, err
	}

	log.Info("Client stopped cleanly")
	return exitOK, nil
}

func printEnvelope(envelope transport.Envelope) {
	switch envelope.Kind {
	case transport.KindNewMessage:
		if envelope.Message != nil {
			fmt.Printf("<%s> %s\n", envelope.Message.SenderID, envelope.Message.Body)
		}
	case transport.KindNotification:
		if envelope.Notif != nil {
			fmt.Printf("** notification: %s from %s\n", envelope.Notif.Kind, envelope.Notif.SenderID)
		}
	case transport.KindTypingStart:
		fmt.Printf(".. %s is typing\n", envelope.UserID)
	case transport.KindRateLimitExceeded:
		fmt.Printf("!! rate limited, retry in %dms\n", envelope.RetryAfterMs)
	default:
		fmt.Printf("-- %s %s\n", envelope.Kind, envelope.ChatID)
	}
}
