package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; with no DATABASE_URL the engine runs
// on the in-memory history store.
type Config struct {
	// Ops HTTP server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// History store (optional)
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Preference backing (optional; in-memory when empty)
	RedisAddr     string
	PreferenceTTL time.Duration

	// Delivery engine
	Workers       int
	QueueCapacity int
	RetryCapacity int
	SendTimeout   time.Duration

	// Rate limits
	UserPerHour      int
	TypePerHour      int
	ChannelPerMinute int

	// Scheduler / analytics loop intervals
	SchedulerTick     time.Duration
	AggregateInterval time.Duration

	// Bulk send
	BulkBatchSize int
	BulkPause     time.Duration

	// Channel transports
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPFrom        string
	SMSProviderURL  string
	PushProviderURL string
	ProviderTimeout time.Duration
}

func Load() (*Config, error) {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 5)),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		PreferenceTTL: getDuration("PREFERENCE_TTL", 5*time.Minute),

		Workers:       getInt("DELIVERY_WORKERS", 5),
		QueueCapacity: getInt("QUEUE_CAPACITY", 1000),
		RetryCapacity: getInt("RETRY_CAPACITY", 1000),
		SendTimeout:   getDuration("SEND_TIMEOUT", 30*time.Second),

		UserPerHour:      getInt("RATE_LIMIT_USER_PER_HOUR", 100),
		TypePerHour:      getInt("RATE_LIMIT_TYPE_PER_HOUR", 500),
		ChannelPerMinute: getInt("RATE_LIMIT_CHANNEL_PER_MINUTE", 60),

		SchedulerTick:     getDuration("SCHEDULER_TICK", time.Second),
		AggregateInterval: getDuration("AGGREGATE_INTERVAL", time.Minute),

		BulkBatchSize: getInt("BULK_BATCH_SIZE", 50),
		BulkPause:     getDuration("BULK_PAUSE", 100*time.Millisecond),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("SMTP_FROM"),

		SMSProviderURL:  os.Getenv("SMS_PROVIDER_URL"),
		PushProviderURL: os.Getenv("PUSH_PROVIDER_URL"),
		ProviderTimeout: getDuration("PROVIDER_TIMEOUT", 30*time.Second),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
