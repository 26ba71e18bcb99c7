package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spreadwatch/config"
	"spreadwatch/internal/spread/api"
	"spreadwatch/internal/spread/metrics"
	"spreadwatch/internal/spread/retention"
	"spreadwatch/internal/spread/session"
	"spreadwatch/logger"
	"spreadwatch/pkg/storage/memory"
	"spreadwatch/pkg/storage/postgres"
	"spreadwatch/pkg/upstream"
	"spreadwatch/pkg/wsconn"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

type signalStore interface {
	session.Recorder
	retention.Pruner
	api.SignalLister
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	stats := metrics.New(reg)

	var store signalStore
	var db api.DBChecker
	if cfg.Postgres.Enabled {
		client, err := postgres.InitializeAndMigrateSignalRecord(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			log.Fatal("failed to connect to DB", zap.Error(err))
		}
		defer client.Close()
		store = client
		db = client
	} else {
		log.Info("postgres disabled, recording signals in memory")
		store = memory.NewSignalStore()
	}

	pruner := &retention.MidnightPruner{
		Pruner:    store,
		Retention: cfg.Postgres.Retention,
		Logger:    log.Named("retention"),
	}
	pruner.Start(ctx)

	sess := session.New(cfg.Stream, session.Deps{
		Recorder: store,
		Metrics:  stats,
		Logger:   log,
	})
	sess.Start(ctx)

	var server *api.Server
	if cfg.API.Enabled {
		opts := []api.Option{api.WithSignals(store)}
		if db != nil {
			opts = append(opts, api.WithDatabase(db))
		}
		streamURL := wsconn.ResolveURL(cfg.Stream.URL, cfg.Stream.PageOrigin, log)
		if base, err := upstream.BaseURL(streamURL); err != nil {
			log.Warn("upstream health disabled", zap.String("url", streamURL), zap.Error(err))
		} else {
			opts = append(opts, api.WithUpstream(upstream.NewRESTClient(base, cfg.Stream.HandshakeTimeout)))
		}

		server = api.New(sess, reg, cfg.Stream.ZScoreThreshold, log.Named("api"), opts...)
		server.Start(cfg.API.Addr)
	}

	<-ctx.Done()
	log.Info("shutting down")

	// the session stops its stream as soon as ctx ends; Close waits for it
	sess.Close()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("api shutdown", zap.Error(err))
		}
		cancel()
	}
}
