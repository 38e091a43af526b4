package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/Veraticus/tariff/internal/classifier"
	"github.com/Veraticus/tariff/internal/common"
	"github.com/Veraticus/tariff/internal/config"
	"github.com/Veraticus/tariff/internal/engine"
	"github.com/Veraticus/tariff/internal/exceptions"
	"github.com/Veraticus/tariff/internal/review"
	"github.com/Veraticus/tariff/internal/storage"
	"github.com/Veraticus/tariff/internal/telemetry"
)

// errNoUser is reported when a command needs a signed-in user.
var errNoUser = errors.New("user.id is not configured")

// app bundles what a command needs: configuration, storage and metrics.
type app struct {
	cfg     *config.Config
	store   *storage.SQLiteStorage
	metrics *telemetry.Metrics
	client  *classifier.ProxyClient
	logger  *slog.Logger
}

// newApp loads configuration, opens and migrates the database, and starts the
// metrics listener when one is configured.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &app{
		cfg:     cfg,
		store:   store,
		metrics: telemetry.New(),
		logger:  slog.Default(),
	}
	if cfg.MetricsListen != "" {
		go func() {
			if err := a.metrics.Serve(ctx, cfg.MetricsListen, a.logger); err != nil {
				a.logger.Warn("Metrics listener stopped", "error", err)
			}
		}()
	}
	return a, nil
}

func (a *app) Close() {
	if a.client != nil {
		a.client.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close database", "error", err)
	}
}

// userID returns the configured user or an unauthenticated error.
func (a *app) userID() (string, error) {
	if a.cfg.UserID == "" {
		return "", common.E(common.KindUnauthenticated, "config", errNoUser)
	}
	return a.cfg.UserID, nil
}

func (a *app) classifierClient() (*classifier.ProxyClient, error) {
	if a.client != nil {
		return a.client, nil
	}
	client, err := classifier.NewProxyClient(a.cfg.Classifier, a.logger)
	if err != nil {
		return nil, common.NewUserError("set classifier.endpoint in the config file or TARIFF_CLASSIFIER_ENDPOINT", err)
	}
	a.client = client
	return client, nil
}

func (a *app) engine() (*engine.Engine, error) {
	client, err := a.classifierClient()
	if err != nil {
		return nil, err
	}
	return engine.New(a.store, client, a.cfg.Engine,
		engine.WithMetrics(a.metrics),
		engine.WithLogger(a.logger)), nil
}

func (a *app) queue() *exceptions.Queue {
	return exceptions.NewQueue(a.store, a.metrics, a.logger)
}

// reviewService wires the rulings assistant when a classifier endpoint is
// configured; without one the assistant uses canned replies only.
func (a *app) reviewService() *review.Service {
	opts := []review.Option{review.WithMetrics(a.metrics), review.WithLogger(a.logger)}
	if a.cfg.Classifier.Endpoint != "" {
		if client, err := a.classifierClient(); err == nil {
			opts = append(opts, review.WithRuler(client))
		}
	}
	return review.NewService(a.store, review.NewLaterStore(a.cfg.LaterPath), a.cfg.Review, opts...)
}
