package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/knowledge-share/backend/internal/config"
	"github.com/DeafMist/knowledge-share/backend/internal/elasticsearch"
	"github.com/DeafMist/knowledge-share/backend/internal/logger"
	"github.com/DeafMist/knowledge-share/backend/internal/models"
	"github.com/DeafMist/knowledge-share/backend/internal/processing"
	"github.com/DeafMist/knowledge-share/backend/internal/store"
)

type articleLister interface {
	ListArticles(ctx context.Context, f store.ArticleFilter) ([]models.Article, error)
}

type articleIndexer interface {
	IndexArticle(ctx context.Context, doc models.ArticleDocument) error
}

func main() {
	log := logger.New("reindex")
	cfg, err := config.LoadReindex()
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

	esClient, err := connect(ctx, log, cfg)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("failed to connect to elasticsearch", slog.Any("err", err))
		db.Close()
		os.Exit(1)
	}
	log.Info("connected to elasticsearch")

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Info("reindex job running", slog.Duration("interval", cfg.Interval))

	runOnce(ctx, log, db, esClient, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, db, esClient, cfg)
		}
	}
}

// connect creates the client and waits for the cluster with exponential backoff.
func connect(ctx context.Context, log *slog.Logger, cfg *config.Reindex) (*elasticsearch.Client, error) {
	const maxRetries = 10
	retryDelay := 2 * time.Second

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = esClient.Ping(pingCtx)
		cancel()
		if err == nil {
			return esClient, nil
		}
		if attempt == maxRetries {
			return nil, fmt.Errorf("after %d attempts: %w", maxRetries, err)
		}

		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_in", retryDelay),
		)
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay = min(retryDelay*2, 30*time.Second)
	}
}

// runOnce indexes every stored article. Single failures are logged and
// retried on the next run.
func runOnce(ctx context.Context, log *slog.Logger, src articleLister, idx articleIndexer, cfg *config.Reindex) (indexed, failed int) {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	articles, err := src.ListArticles(subCtx, store.ArticleFilter{})
	if err != nil {
		log.Warn("reindex run failed (will retry on next interval)", slog.Any("err", err))
		return 0, 0
	}

	for _, a := range articles {
		doc := processing.Document(a, cfg.KeywordLimit, cfg.KeywordMinLength)
		if err := idx.IndexArticle(subCtx, doc); err != nil {
			failed++
			log.Warn("index article", slog.String("id", a.ID), slog.Any("err", err))
			continue
		}
		indexed++
	}

	log.Info("reindex run completed", slog.Int("indexed", indexed), slog.Int("failed", failed))
	return indexed, failed
}
