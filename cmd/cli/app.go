package main

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/and161185/blindbox/internal/apiclient"
	"github.com/and161185/blindbox/internal/cartstore"
	"github.com/and161185/blindbox/internal/config"
	"github.com/and161185/blindbox/internal/logging"
	"github.com/and161185/blindbox/internal/migrate"
	"github.com/and161185/blindbox/internal/repository"
	"github.com/and161185/blindbox/internal/repository/file"
	"github.com/and161185/blindbox/internal/repository/postgres"
	redisrepo "github.com/and161185/blindbox/internal/repository/redis"
	"github.com/and161185/blindbox/internal/service"
)

// app is everything a command needs, built once per invocation.
type app struct {
	log     *zap.Logger
	creds   repository.CredentialRepository
	auth    service.AuthService
	catalog service.CatalogService
	cart    *cartstore.Store
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.Log.File == "" && cfg.Storage.Driver == "file" {
		cfg.Log.File = filepath.Join(cfg.Storage.Dir, "bb.log")
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{log: log}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	creds, snaps, closeStorage, err := openStorage(ctx, cfg.Storage, log)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	a.closers = append(a.closers, closeStorage)
	a.creds = creds

	opts := []apiclient.Option{
		apiclient.WithLogger(log.Named("api")),
		apiclient.WithTimeout(cfg.API.Timeout),
		apiclient.WithUserAgent("bb/" + version),
	}
	if !cfg.API.CoalesceRefresh {
		opts = append(opts, apiclient.WithoutRefreshCoalescing())
	}
	api, err := apiclient.New(cfg.API.BaseURL, creds, opts...)
	if err != nil {
		a.close()
		return nil, err
	}

	a.auth = service.NewAuthService(api, creds)
	a.catalog = service.NewCatalogService(api)
	a.cart = cartstore.New(service.NewCartService(api), snaps, cartstore.WithLogger(log.Named("cart")))
	a.cart.Subscribe(func(st cartstore.State) {
		log.Debug("cart state",
			zap.Bool("loading", st.IsLoading),
			zap.Int("items", st.Cart.ItemCount()),
			zap.String("err", st.Err),
		)
	})
	if err := a.cart.Restore(ctx); err != nil {
		log.Warn("restore cart", zap.Error(err))
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openStorage(ctx context.Context, cfg config.Storage, log *zap.Logger) (repository.CredentialRepository, repository.SnapshotRepository, func(), error) {
	switch cfg.Driver {
	case "redis":
		rdb, err := redisrepo.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		s := redisrepo.New(rdb, cfg.Namespace, cfg.SnapshotTTL)
		return s, s, func() { _ = rdb.Close() }, nil
	case "postgres":
		if err := migrate.Up(ctx, cfg.PostgresDSN, log); err != nil {
			return nil, nil, nil, fmt.Errorf("migrate: %w", err)
		}
		db, err := postgres.New(ctx, cfg.PostgresDSN, cfg.Namespace)
		if err != nil {
			return nil, nil, nil, err
		}
		return postgres.NewCredentialRepo(db), postgres.NewSnapshotRepo(db), db.Close, nil
	default:
		s := file.New(cfg.Dir)
		return s, s, func() {}, nil
	}
}
