package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/knowledge-share/backend/internal/auth"
	"github.com/DeafMist/knowledge-share/backend/internal/config"
	"github.com/DeafMist/knowledge-share/backend/internal/elasticsearch"
	"github.com/DeafMist/knowledge-share/backend/internal/events"
	"github.com/DeafMist/knowledge-share/backend/internal/logger"
	"github.com/DeafMist/knowledge-share/backend/internal/processing"
	"github.com/DeafMist/knowledge-share/backend/internal/store"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := store.Open(openCtx, cfg.Driver, cfg.DSN, log)
	cancel()
	if err != nil {
		log.Error("open database", slog.Any("err", err))
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database ready", slog.String("driver", cfg.Driver))

	processor, err := processing.New(cfg.ContentProcessor)
	if err != nil {
		log.Error("init content processor", slog.Any("err", err))
		os.Exit(1)
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Brokers) > 0 {
		publisher = events.NewKafka(cfg.Brokers, cfg.Topic)
		log.Info("publishing article events", slog.String("topic", cfg.Topic))
	}
	defer publisher.Close()

	srv := &server{
		log:       log,
		clientURL: cfg.ClientURL,
		users:     db,
		articles:  db,
		processor: processor,
		hasher:    auth.NewHasher(cfg.BcryptCost),
		tokens:    auth.NewTokens(cfg.JWTSecret, cfg.JWTExpiresIn),
		events:    publisher,
	}

	if cfg.SearchBackend == config.SearchElasticsearch {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err != nil {
			log.Error("init elasticsearch", slog.Any("err", err))
			os.Exit(1)
		}
		srv.search = esClient
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
