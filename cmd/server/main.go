// Command bb-devserver runs the in-memory blindbox REST backend.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/and161185/blindbox/internal/config"
	"github.com/and161185/blindbox/internal/crypto"
	"github.com/and161185/blindbox/internal/devserver"
	"github.com/and161185/blindbox/internal/limiter"
	"github.com/and161185/blindbox/internal/logging"
	"github.com/and161185/blindbox/internal/migrate"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	v := viper.New()
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "bb-devserver",
		Short:        "In-memory blindbox API for local development",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, cfgPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file")
	cmd.Flags().String("addr", "", "listen address")
	_ = v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// run starts the HTTP server and blocks until ctx is done.
func run(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.Addr),
	)

	key := []byte(cfg.Server.JWTKey)
	if len(key) == 0 {
		key, err = crypto.RandBytes(32)
		if err != nil {
			return err
		}
		logger.Warn("no server.jwt_key configured, using an ephemeral key",
			zap.String("key_hint", hex.EncodeToString(key[:4])))
	}

	var lim limiter.Limiter
	if dsn := cfg.Server.PostgresDSN; dsn != "" {
		if err := migrate.Up(ctx, dsn, logger); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return fmt.Errorf("pgxpool: %w", err)
		}
		defer pool.Close()
		lim = limiter.NewPG(pool, limiter.DefaultPolicy())
	}

	gin.SetMode(gin.ReleaseMode)
	srv, err := devserver.New(devserver.Config{
		JWTKey:     key,
		AccessTTL:  cfg.Server.AccessTTL,
		RefreshTTL: cfg.Server.RefreshTTL,
		Limiter:    lim,
	}, logger)
	if err != nil {
		return err
	}

	hs := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forced shutdown", zap.Error(err))
			_ = hs.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			return err
		}
	}
	logger.Info("shutdown complete")
	return nil
}
