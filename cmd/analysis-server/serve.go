package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"chessanalysis/internal/server/config"
	"chessanalysis/internal/server/engine"
	"chessanalysis/internal/server/http"
	"chessanalysis/internal/server/ledger"
	"chessanalysis/internal/server/processor"
	"chessanalysis/internal/server/service"
	"chessanalysis/internal/server/session"
	"chessanalysis/internal/server/socket"
	"chessanalysis/internal/server/storage"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const devSecret = "dev-secret-minimum-32-characters-long"

func runServe(cfg config.Config, flags serveFlags) error {
	if err := validateFlags(flags); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	if flags.pidPath != "" {
		cleanup, err := managePIDFile(flags.pidPath, flags.pidLock)
		if err != nil {
			return fmt.Errorf("failed to manage PID file: %w", err)
		}
		defer cleanup()
		log.Info().Str("path", flags.pidPath).Bool("lock", flags.pidLock).Msg("PID file created")
	}

	// 1. Storage (optional)
	var store *storage.Store
	var sink ledger.Sink
	if cfg.Storage.Path != "" {
		store, err = storage.NewStore(cfg.Storage.Path, cfg.API.Dev, log)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		if err := store.InitDB(); err != nil {
			store.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		sink = store
		log.Info().Str("path", cfg.Storage.Path).Msg("persistent storage enabled")
	} else {
		log.Info().Msg("persistent storage disabled (use --storage-path to enable)")
	}

	// 2. Service with token secret
	jwtSecret, err := resolveSecret(cfg, log)
	if err != nil {
		return err
	}
	svc := service.New(store, jwtSecret)

	// 3. Engine gateway and processor
	gw, err := engine.New(engine.Config{
		Binary:  cfg.Engine.Binary,
		Timeout: cfg.Engine.Timeout,
		Logger:  log,
	})
	if err != nil {
		svc.Shutdown()
		return fmt.Errorf("failed to initialize engine gateway: %w", err)
	}

	proc, err := processor.New(processor.Config{
		Analyzer:      gw,
		Depth:         cfg.Engine.Depth,
		MaxConcurrent: cfg.Engine.MaxConcurrent,
		Logger:        log,
	})
	if err != nil {
		svc.Shutdown()
		return fmt.Errorf("failed to initialize processor: %w", err)
	}

	// 4. Sessions, ledger and transports
	writer := ledger.NewWriter(sink, log)
	sessions := session.NewManager(session.Config{
		Dispatcher: proc,
		Ledger:     writer,
		EventRate:  cfg.Socket.EventRate,
		EventBurst: cfg.Socket.EventBurst,
		Logger:     log,
	})

	sock := socket.New(socket.Config{
		Host:           cfg.Socket.Host,
		Port:           cfg.Socket.Port,
		Path:           cfg.Socket.Path,
		AllowedOrigins: cfg.Socket.AllowedOrigins,
		Sessions:       sessions,
		ValidateToken:  svc.ValidateToken,
		Logger:         log,
	})

	app := http.NewFiberApp(svc, sessions, cfg.API.Dev)
	apiAddr := net.JoinHostPort(cfg.API.Host, fmt.Sprint(cfg.API.Port))

	log.Info().
		Str("api", "http://"+apiAddr).
		Str("socket", "ws://"+sock.Addr()+cfg.Socket.Path).
		Str("engine", cfg.Engine.Binary).
		Int("depth", cfg.Engine.Depth).
		Dur("timeout", cfg.Engine.Timeout).
		Int("max_concurrent", cfg.Engine.MaxConcurrent).
		Bool("dev", cfg.API.Dev).
		Msg("analysis server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := app.Listen(apiAddr); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := sock.ListenAndServe(); err != nil {
			return fmt.Errorf("session socket: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		var errs []error
		if err := sock.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("socket shutdown: %w", err))
		}
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("api shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	runErr := g.Wait()

	// In-flight engine processes are killed; their sessions are gone
	if err := proc.Close(gracefulShutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("processor close")
	}
	if err := writer.Wait(gracefulShutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("ledger drain")
	}
	if err := svc.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("service shutdown")
	}

	log.Info().Msg("servers exited")
	return runErr
}

// resolveSecret prefers the configured secret. Without one, dev mode uses a
// fixed secret and production a random one that dies with the process.
func resolveSecret(cfg config.Config, log zerolog.Logger) ([]byte, error) {
	switch {
	case cfg.Auth.JWTSecret != "":
		return []byte(cfg.Auth.JWTSecret), nil
	case cfg.API.Dev:
		log.Warn().Msg("using fixed JWT secret (dev mode)")
		return []byte(devSecret), nil
	default:
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		log.Warn().Msg("JWT secret generated, tokens valid until restart")
		return secret, nil
	}
}
