package main

import (
	"context"
	"educonnect/auth"
	"educonnect/domain"
	"educonnect/internal"
	"educonnect/repositories"
	"educonnect/runtime"
	"educonnect/runtime/workers"
	"educonnect/services"
	"educonnect/sink"
	"educonnect/transport/api"
	"educonnect/transport/ws"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run owns every resource so the deferred closes happen before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	charReplacement, _ := internal.CharacterRune(config.CharReplacement)
	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (Badger + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	rooms := repositories.NewRoomRepository(db, logger, config.PersistRetries)
	messages := repositories.NewMessageRepository(db, logger, config.PersistRetries)
	users := repositories.NewUserRepository(db, logger, config.PersistRetries)
	index := repositories.NewMessageIndex(blugeWriter, logger)

	seedRooms := config.Rooms()
	if err = rooms.EnsureRooms(ctx, seedRooms...); err != nil {
		return exitRuntime, fmt.Errorf("room seeding failed: %w", err)
	}
	logger.Info("Rooms ready", "rooms", seedRooms)

	// 3. Supervision & Orchestration
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	orchestrator, err := runtime.NewOrchestrator(logger, sup, rooms, messages, runtime.Options{
		HistoryWorkers:       config.HistoryWorkers,
		HistoryLimit:         config.HistoryLimit,
		BufferSize:           config.BufferSize,
		MaxMessageSize:       config.MaxMessageSize,
		PersistTimeout:       config.PersistTimeout,
		SinkTimeout:          config.SinkTimeout,
		MetricInterval:       config.MetricInterval,
		LowCapacityThreshold: config.LowCapacityThreshold,
		DefaultRoom:          config.DefaultRoom,
		PrivilegedRoom:       config.PrivilegedRoom,
		CharReplacement:      charReplacement,
		CensoredWords:        internal.List(config.CensoredWords),
	})
	if err != nil {
		return exitRuntime, fmt.Errorf("orchestrator setup failed: %w", err)
	}
	orchestrator.Add(sink.NewIndexSink(index, logger))

	// 4. Services
	sessions := auth.NewSessionStore(config.SessionSecret, config.SecureCookies, int(config.SessionMaxAge.Seconds()), users)
	tokens := auth.NewTokenIssuer(config.ResetTokenSecret, config.ResetTokenDuration)
	authService := services.NewAuthService(logger, users, messages, tokens, services.NewLogMailer(logger), orchestrator, orchestrator, config.ClientURL)
	chatService := services.NewChatService(logger, rooms, messages, users, index,
		orchestrator.Resolver(), orchestrator.Broadcaster(), orchestrator,
		orchestratorPolicy(config), config.RestHistoryLimit)

	if config.AdminEmail != "" {
		if _, err = authService.EnsureAdmin(ctx, config.AdminUsername, config.AdminEmail, config.AdminPassword); err != nil {
			return exitConfig, fmt.Errorf("admin bootstrap failed: %w", err)
		}
	}

	// 5. Transport
	allowedOrigins := internal.List(config.AllowedOrigins)
	wsHandler := ws.NewHandler(logger, orchestrator.Presence(), sessions, ws.Config{
		AllowedOrigins: allowedOrigins,
		MaxFrameSize:   config.MaxFrameSize,
		BufferSize:     config.ConnectionBufferSize,
		RateBurst:      config.RateBurst,
		RateInterval:   config.RateInterval,
	})
	router := api.NewRouter(logger, api.Dependencies{
		Auth:           authService,
		Chat:           chatService,
		Sessions:       sessions,
		WebSocket:      wsHandler,
		Stats:          orchestrator.Registry().Stats,
		AllowedOrigins: allowedOrigins,
	})
	server := &http.Server{
		Addr:              config.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 6. Start
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errChan := make(chan error, 2)

	go func() {
		logger.Info("Starting orchestrator...")
		if err := orchestrator.Start(runCtx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()
	go func() {
		logger.Info("Starting HTTP server", "address", server.Addr, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 7. Wait for a signal or a crash
	wait := gfshutdown.GracefulShutdown(ctx, config.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			return server.Shutdown(ctx)
		},
		"orchestrator": func(ctx context.Context) error {
			orchestrator.Stop()
			cancel()
			return nil
		},
	})

	select {
	case code := <-wait:
		logger.Info("Program stopped", "exit_code", code)
		if code != exitOK {
			return exitRuntime, fmt.Errorf("graceful shutdown incomplete")
		}
		return exitOK, nil
	case err = <-errChan:
		orchestrator.Stop()
		shutdownCtx, cancelShutdown := context.WithTimeout(ctx, config.ShutdownTimeout)
		defer cancelShutdown()
		_ = server.Shutdown(shutdownCtx)
		return exitRuntime, err
	}
}

func orchestratorPolicy(config internal.Config) domain.PostingPolicy {
	return domain.PostingPolicy{PrivilegedRoom: config.PrivilegedRoom}
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}
