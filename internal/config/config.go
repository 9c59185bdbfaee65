package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Supported search backends for the article list endpoint.
const (
	SearchSQL           = "sql"
	SearchElasticsearch = "elasticsearch"
)

// Database holds relational store parameters.
type Database struct {
	Driver string
	DSN    string
}

// Search contains Elasticsearch parameters shared by the indexing services.
type Search struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Kafka describes the article events topic.
type Kafka struct {
	Brokers []string
	Topic   string
}

// API describes HTTP-layer configuration.
type API struct {
	Database
	Search
	Kafka
	BindAddr         string
	JWTSecret        string
	JWTExpiresIn     time.Duration
	BcryptCost       int
	ClientURL        string
	ContentProcessor string
	SearchBackend    string
}

// Worker holds configuration for the Kafka -> Elasticsearch indexer.
type Worker struct {
	Search
	Kafka
	ConsumerGroup    string
	KeywordLimit     int
	KeywordMinLength int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
}

// Reindex configures the periodic full re-index loop.
type Reindex struct {
	Database
	Search
	Interval time.Duration
	// Keyword settings are shared with the worker so both build the same documents.
	KeywordLimit     int
	KeywordMinLength int
}

// LoadDatabase builds a Database config from environment variables.
func LoadDatabase() (*Database, error) {
	loadDotEnv()
	db := loadDatabase()
	if err := db.validate(); err != nil {
		return nil, err
	}
	return &db, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	loadDotEnv()
	c := &API{
		Database: loadDatabase(),
		Search:   loadSearch(),
		Kafka: Kafka{
			Brokers: splitAndTrim(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "article_events"),
		},
		BindAddr:         getEnv("API_BIND_ADDR", "0.0.0.0:"+getEnv("PORT", "5000")),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTExpiresIn:     getDuration("JWT_EXPIRES_IN", "7d"),
		BcryptCost:       getInt("BCRYPT_COST", 10),
		ClientURL:        getEnv("CLIENT_URL", "*"),
		ContentProcessor: getEnv("CONTENT_PROCESSOR", "deterministic"),
		SearchBackend:    strings.ToLower(getEnv("SEARCH_BACKEND", SearchSQL)),
	}

	if err := c.Database.validate(); err != nil {
		return nil, err
	}
	if c.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}
	if c.JWTExpiresIn <= 0 {
		return nil, fmt.Errorf("JWT_EXPIRES_IN must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return nil, fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	if c.SearchBackend != SearchSQL && c.SearchBackend != SearchElasticsearch {
		return nil, fmt.Errorf("SEARCH_BACKEND must be %q or %q", SearchSQL, SearchElasticsearch)
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	loadDotEnv()
	c := &Worker{
		Search: loadSearch(),
		Kafka: Kafka{
			Brokers: splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
			Topic:   getEnv("KAFKA_TOPIC", "article_events"),
		},
		ConsumerGroup:    getEnv("KAFKA_CONSUMER_GROUP", "article-indexer"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 8),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LEN", 4),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 10),
	}

	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}

	return c, nil
}

// LoadReindex builds a Reindex config from environment variables.
func LoadReindex() (*Reindex, error) {
	loadDotEnv()
	c := &Reindex{
		Database:         loadDatabase(),
		Search:           loadSearch(),
		Interval:         getDuration("REINDEX_INTERVAL", "1h"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 8),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LEN", 4),
	}

	if err := c.Database.validate(); err != nil {
		return nil, err
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("REINDEX_INTERVAL must be positive")
	}

	return c, nil
}

func loadDatabase() Database {
	return Database{
		Driver: strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		DSN:    getEnv("DATABASE_DSN", "file:knowledge.db?_pragma=foreign_keys(1)"),
	}
}

func (d Database) validate() error {
	switch d.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q", DriverSQLite, DriverPostgres)
	}
	if d.DSN == "" {
		return fmt.Errorf("DATABASE_DSN must be set")
	}
	return nil
}

func loadSearch() Search {
	return Search{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "articles"),
	}
}

// loadDotEnv reads .env from the working directory. Variables already set
// in the environment win.
func loadDotEnv() {
	_ = godotenv.Load()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := parseDuration(getEnv(key, fallback))
	if err != nil {
		fd, ferr := parseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseDuration accepts Go durations plus a whole-day suffix ("7d").
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("parse days %q: %w", raw, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(raw)
}
