package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"netban/internal/adapter"
	"netban/internal/audit"
	"netban/internal/platform/config"
	"netban/internal/platform/httpserver"
	"netban/internal/platform/kafka"
	"netban/internal/platform/logger"
	"netban/internal/platform/middleware"
	"netban/internal/platform/postgres"
	platformredis "netban/internal/platform/redis"
	"netban/internal/punish/bus"
	"netban/internal/punish/cache"
	"netban/internal/punish/metrics"
	"netban/internal/punish/service"
	"netban/internal/punish/store"
	memorystore "netban/internal/punish/store/memory"
	postgresstore "netban/internal/punish/store/postgres"
	httptransport "netban/internal/transport/http"
)

// main wires dependencies explicitly and keeps the process lifecycle small.
// Business logic lives in the internal packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	joinPolicy, err := adapter.ParsePolicy(cfg.JoinPolicy)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var st store.Store
	if cfg.PostgresURL != "" {
		db, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := postgresstore.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
		st = pg
	} else {
		log.Warn("no postgres configured, punishments are not durable")
		st = memorystore.New()
	}

	var c cache.Cache
	if cfg.CacheTier == "redis" && redisClient != nil {
		c = cache.NewRedis(redisClient.Client, cfg.CacheTTL, log)
	} else {
		c = cache.NewLRU(cfg.CacheMaxEntries, cfg.CacheTTL)
	}

	var b bus.Bus
	var redisBus *bus.RedisBus
	if redisClient != nil {
		redisBus = bus.NewRedis(redisClient.Client, log)
		b = redisBus
	} else {
		log.Warn("no redis configured, invalidation stays node-local")
		b = bus.NewMemoryNetwork().Join()
	}

	var journal audit.Journal = audit.Nop{}
	kafkaClient, err := kafka.New(cfg.KafkaBrokers)
	if err != nil {
		log.Error("kafka connect failed", "error", err)
		os.Exit(1)
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		if err := kafka.EnsureTopic(ctx, kafkaClient, audit.Topic, 3); err != nil {
			log.Error("audit topic setup failed", "error", err)
			os.Exit(1)
		}
		journal = audit.NewKafka(kafkaClient, log)
	}

	svc := service.New(service.Config{
		NodeID:      cfg.NodeID,
		DegradedTTL: cfg.DegradedTTL,
	}, st, c, b, journal, metrics.New(), log)

	var validator middleware.Validator
	if cfg.JWTSigningKey != "" {
		validator = middleware.NewHMACValidator(cfg.JWTSigningKey)
	} else {
		log.Warn("no JWT signing key configured, admin API is unauthenticated")
	}

	gate := adapter.NewGate(svc, joinPolicy, cfg.JoinTimeout, log)
	handler := httptransport.NewHandler(svc, gate, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, validator, log))

	g, ctx := errgroup.WithContext(ctx)

	if redisBus != nil {
		g.Go(func() error { return ignoreCancel(redisBus.Run(ctx)) })
	}
	g.Go(func() error { return ignoreCancel(svc.RunSweep(ctx, cfg.SweepInterval)) })
	g.Go(func() error {
		log.Info("starting netban", "addr", cfg.Addr, "node", cfg.NodeID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
