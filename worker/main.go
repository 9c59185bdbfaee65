package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/knowledge-share/backend/internal/config"
	"github.com/DeafMist/knowledge-share/backend/internal/dedupe"
	"github.com/DeafMist/knowledge-share/backend/internal/elasticsearch"
	"github.com/DeafMist/knowledge-share/backend/internal/events"
	"github.com/DeafMist/knowledge-share/backend/internal/logger"
	"github.com/DeafMist/knowledge-share/backend/internal/models"
	"github.com/DeafMist/knowledge-share/backend/internal/processing"
)

const dlqAttempts = 5

// dlqBackoff is the first retry delay; it doubles on every attempt.
var dlqBackoff = time.Second

type articleIndexer interface {
	IndexArticle(ctx context.Context, doc models.ArticleDocument) error
	DeleteArticle(ctx context.Context, id string) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	cache := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit only
	})
	defer reader.Close()

	dlqTopic := cfg.Topic + "_dlq"
	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.Brokers,
		Topic:       dlqTopic,
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.Topic),
		slog.String("group", cfg.ConsumerGroup),
		slog.String("dlq_topic", dlqTopic),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, esClient, cache, cfg, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			// A message is only committed once it is safely in the DLQ;
			// otherwise it is reprocessed after restart.
			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				if ctx.Err() != nil {
					return
				}
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

func processMessage(ctx context.Context, log *slog.Logger, idx articleIndexer, cache *dedupe.Cache, cfg *config.Worker, msg kafka.Message) error {
	evt, err := events.Decode(msg)
	if err != nil {
		return err
	}
	if evt.ID == "" {
		return errors.New("event without id")
	}

	if cache.IsSeen(evt.ID) {
		log.Debug("duplicate event", slog.String("event_id", evt.ID))
		return nil
	}

	switch evt.Type {
	case models.EventArticleCreated, models.EventArticleUpdated:
		if evt.Article == nil {
			return fmt.Errorf("%s event %s carries no article", evt.Type, evt.ID)
		}
		doc := processing.Document(*evt.Article, cfg.KeywordLimit, cfg.KeywordMinLength)
		if doc.ID == "" {
			doc.ID = evt.ArticleID
		}
		if doc.ID == "" {
			return fmt.Errorf("%s event %s has no article id", evt.Type, evt.ID)
		}
		if err := idx.IndexArticle(ctx, doc); err != nil {
			return err
		}
		log.Info("indexed article", slog.String("id", doc.ID), slog.String("title", doc.Title))

	case models.EventArticleDeleted:
		if evt.ArticleID == "" {
			return fmt.Errorf("delete event %s has no article id", evt.ID)
		}
		if err := idx.DeleteArticle(ctx, evt.ArticleID); err != nil {
			return err
		}
		log.Info("removed article from index", slog.String("id", evt.ArticleID))

	default:
		return fmt.Errorf("unknown event type %q", evt.Type)
	}

	cache.MarkSeen(evt.ID)
	return nil
}

// sendToDLQ forwards msg with error context, retrying with exponential
// backoff. It reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w messageWriter, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...),
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	backoff := dlqBackoff
	for attempt := range dlqAttempts {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}
		if attempt == dlqAttempts-1 {
			break
		}

		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
		backoff *= 2
	}
	return false
}
