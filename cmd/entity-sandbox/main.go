package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	entitycli "github.com/Layr-Labs/entity-client/internal/cli"
	"github.com/Layr-Labs/entity-client/internal/config"
	"github.com/Layr-Labs/entity-client/internal/sandbox"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := entitycli.LoadEnvFile(os.Getenv(entitycli.EnvFileVar)); err != nil {
		return err
	}

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	logger, err := entitycli.NewLogger(level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nonces, err := newNonceStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = nonces.Close() }()

	srv, err := sandbox.New(cfg, nonces, logger)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Sugar().Infow("entity-sandbox listening",
		"addr", cfg.ListenAddr,
		"encrypt_responses", cfg.EncryptResponses,
		"replay_window", cfg.ReplayWindow,
		"redis", cfg.RedisAddr != "",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func newNonceStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (sandbox.NonceStore, error) {
	if cfg.RedisAddr != "" {
		logger.Sugar().Infow("Using redis nonce store", "addr", cfg.RedisAddr)
		return sandbox.NewRedisNonceStore(cfg.RedisAddr, cfg.ReplayWindow), nil
	}
	return sandbox.NewMemoryNonceStore(ctx, cfg.ReplayWindow)
}
