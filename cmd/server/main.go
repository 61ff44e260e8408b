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

	"golang.org/x/sync/errgroup"

	"github.com/openmiclive/lineup/config"
	deliveryHTTP "github.com/openmiclive/lineup/internal/delivery/http"
	"github.com/openmiclive/lineup/internal/notify"
	notifyKafka "github.com/openmiclive/lineup/internal/notify/kafka"
	repo "github.com/openmiclive/lineup/internal/repository/redis"
	"github.com/openmiclive/lineup/internal/service"
	pkgKafka "github.com/openmiclive/lineup/pkg/kafka"
	pkgLog "github.com/openmiclive/lineup/pkg/logger"
	pkgRedis "github.com/openmiclive/lineup/pkg/redis"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.New(cfg.Log.Level, cfg.Log.Format)
	defer l.Sync()

	redisCli, err := pkgRedis.Connect(ctx, pkgRedis.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		l.Fatal("failed to connect to redis", "error", err)
	}
	defer pkgRedis.Disconnect(redisCli)

	signupRepo := repo.NewRedisSignupRepository(redisCli, l)

	notifier := notify.NewNoop()
	if cfg.Kafka.Enabled {
		prod, err := pkgKafka.NewProducer(pkgKafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RetryMax:     cfg.Kafka.ProducerRetryMax,
			RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
		})
		if err != nil {
			l.Fatal("failed to initialize kafka producer", "error", err)
		}
		notifier = notifyKafka.NewNotifier(prod, l)
	}
	defer notifier.Close()

	registry := service.NewRegistry(signupRepo, notifier, service.Settings{
		AverageTurn:      cfg.Lineup.AverageTurn,
		RotationWindow:   cfg.Lineup.RotationWindow,
		RotationEnabled:  cfg.Lineup.RotationEnabled,
		PriorityOffset:   cfg.Lineup.PriorityOffset,
		PollInterval:     cfg.Lineup.PollInterval,
		FailureTolerance: cfg.Lineup.FailureTolerance,
	}, l)
	defer registry.Close()

	handler := deliveryHTTP.NewHandler(registry, l)
	router := deliveryHTTP.NewRouter(handler, cfg.JWT.Secret, l)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Info("admin API listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			l.Info("shutting down", "signal", sig.String())
		case <-gCtx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
