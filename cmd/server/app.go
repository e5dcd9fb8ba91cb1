package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warp/ledger-engine/config"
	"github.com/warp/ledger-engine/locking"
	"github.com/warp/ledger-engine/reconcile"
	"github.com/warp/ledger-engine/store/sqlite"
)

// app is everything a command needs, built from the layered configuration.
type app struct {
	cfg   config.Config
	log   *logrus.Entry
	store *sqlite.Store
	rec   *reconcile.Reconciler

	closers []func() error
}

// loadConfig applies --config, then the environment, then flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.Database.Path = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if cmd.Flags().Lookup("port") != nil && cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Server.Port = port
	}
	return cfg, cfg.Validate()
}

// newApp opens the store and the lock backend and builds the reconciler.
// Metrics register on reg.
func newApp(ctx context.Context, cmd *cobra.Command, reg prometheus.Registerer) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := logrus.NewEntry(config.NewLogger(cfg.Log, cmd.ErrOrStderr()))

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	a := &app{cfg: cfg, log: log, store: store, closers: []func() error{store.Close}}

	locker, err := a.newLocker(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	a.rec = reconcile.New(store, locker,
		reconcile.WithLogger(log),
		reconcile.WithMetrics(reconcile.NewMetrics(reg)),
		reconcile.WithLockWait(cfg.Lock.Wait.Duration),
	)
	return a, nil
}

func (a *app) newLocker(ctx context.Context) (locking.Locker, error) {
	if a.cfg.Lock.Backend != "redis" {
		return locking.NewLocal(), nil
	}
	locker, closeRedis, err := locking.NewRedis(ctx, locking.RedisOptions{
		Addr:     a.cfg.Lock.RedisAddr,
		Password: a.cfg.Lock.RedisPassword,
		DB:       a.cfg.Lock.RedisDB,
		TTL:      a.cfg.Lock.TTL.Duration,
	}, a.log.WithField("module", "locking"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeRedis)
	a.log.WithField("addr", a.cfg.Lock.RedisAddr).Info("using redis lock backend")
	return locker, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
}
