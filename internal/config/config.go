package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SourceConfig holds the per-source ingestion and downstream settings.
type SourceConfig struct {
	Secret           string
	SignatureHeader  string
	TimestampHeader  string
	DeliveryIDHeader string
	EventTypeHeader  string
	DownstreamURL    string
	RateCapacity     int
	RateRefillPerSec float64
}

// FeedConfig describes one incremental sync feed.
type FeedConfig struct {
	Name string
	URL  string
}

// NotifyConfig holds notification channel settings. Channels with empty
// settings are simply not constructed.
type NotifyConfig struct {
	ChatWebhookURL string
	SMTPAddr       string
	EmailFrom      string
	EmailTo        []string
	SMTPUsername   string
	SMTPPassword   string
}

// Config holds all configuration for the application.
type Config struct {
	Port             string
	DatabaseURL      string
	RedisURL         string
	NumWorkers       int
	MaxSkew          time.Duration
	OperationTimeout time.Duration
	SyncInterval     time.Duration
	Sources          map[string]SourceConfig
	Feeds            []FeedConfig
	Notify           NotifyConfig
}

// Sources the pipeline knows how to ingest. Per-source settings come from
// env vars suffixed with the upper-snake form of the source name, e.g.
// WEBHOOK_SECRET_PAYMENT_EVENT.
var knownSources = []string{"repository-push", "commerce-order", "payment-event", "generic"}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		NumWorkers:       getEnvInt("NUM_WORKERS", 50),
		MaxSkew:          time.Duration(getEnvInt("WEBHOOK_MAX_SKEW_SECONDS", 300)) * time.Second,
		OperationTimeout: time.Duration(getEnvInt("OPERATION_TIMEOUT_SECONDS", 120)) * time.Second,
		SyncInterval:     time.Duration(getEnvInt("SYNC_INTERVAL_SECONDS", 60)) * time.Second,
		Sources:          map[string]SourceConfig{},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	for _, name := range knownSources {
		suffix := envSuffix(name)
		secret := getEnv("WEBHOOK_SECRET_"+suffix, "")
		if secret == "" {
			// Sources without a secret are not exposed.
			continue
		}
		cfg.Sources[name] = SourceConfig{
			Secret:           secret,
			SignatureHeader:  getEnv("WEBHOOK_SIGNATURE_HEADER_"+suffix, "X-Signature"),
			TimestampHeader:  getEnv("WEBHOOK_TIMESTAMP_HEADER_"+suffix, "X-Timestamp"),
			DeliveryIDHeader: getEnv("WEBHOOK_DELIVERY_ID_HEADER_"+suffix, "X-Delivery-ID"),
			EventTypeHeader:  getEnv("WEBHOOK_EVENT_TYPE_HEADER_"+suffix, "X-Event-Type"),
			DownstreamURL:    getEnv("DOWNSTREAM_URL_"+suffix, ""),
			RateCapacity:     getEnvInt("RATE_LIMIT_CAPACITY_"+suffix, 10),
			RateRefillPerSec: getEnvFloat("RATE_LIMIT_REFILL_"+suffix, 5),
		}
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no webhook sources configured (set WEBHOOK_SECRET_<SOURCE>)")
	}

	// SYNC_FEEDS is a comma-separated list of name=url pairs.
	if feeds := getEnv("SYNC_FEEDS", ""); feeds != "" {
		for _, pair := range strings.Split(feeds, ",") {
			name, url, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || name == "" || url == "" {
				return nil, fmt.Errorf("malformed SYNC_FEEDS entry %q (want name=url)", pair)
			}
			cfg.Feeds = append(cfg.Feeds, FeedConfig{Name: name, URL: url})
		}
	}

	cfg.Notify = NotifyConfig{
		ChatWebhookURL: getEnv("NOTIFY_CHAT_WEBHOOK_URL", ""),
		SMTPAddr:       getEnv("NOTIFY_SMTP_ADDR", ""),
		EmailFrom:      getEnv("NOTIFY_EMAIL_FROM", ""),
		SMTPUsername:   getEnv("NOTIFY_SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("NOTIFY_SMTP_PASSWORD", ""),
	}
	if to := getEnv("NOTIFY_EMAIL_TO", ""); to != "" {
		for _, addr := range strings.Split(to, ",") {
			cfg.Notify.EmailTo = append(cfg.Notify.EmailTo, strings.TrimSpace(addr))
		}
	}

	return cfg, nil
}

func envSuffix(source string) string {
	return strings.ToUpper(strings.ReplaceAll(source, "-", "_"))
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}
