package main

import (
	"time"
)

const (
	defaultBindHost       = "0.0.0.0"
	defaultAPIPort        = 8000
	defaultTCPPort        = 4000
	defaultOTLPPort       = 4317
	defaultQueryTimeout   = 30 * time.Second
	defaultQueueWorkers   = 4
	defaultMaxDeliveries  = 5
	defaultQueueBuffer    = 1024
	defaultFeedInterval   = 2 * time.Second
	defaultFeedBatchSize  = 100
	defaultCacheTTL       = 10 * time.Second
	defaultBackupInterval = 6 * time.Hour
	defaultBackupKeep     = 24
	defaultLogRetention   = 0 // days, 0 = disabled
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	DBPath       string        `mapstructure:"db-path"`
	QueryTimeout time.Duration `mapstructure:"query-timeout"`
	LogRetention int           `mapstructure:"log-retention"`

	APIEnabled bool   `mapstructure:"api-enabled"`
	APIPort    int    `mapstructure:"api-port"`
	APIAddr    string `mapstructure:"api-addr"`

	TCPEnabled bool   `mapstructure:"tcp-enabled"`
	TCPPort    int    `mapstructure:"tcp-port"`
	TCPAddr    string `mapstructure:"tcp-addr"`

	OTLPEnabled bool   `mapstructure:"otlp-enabled"`
	OTLPPort    int    `mapstructure:"otlp-port"`
	OTLPAddr    string `mapstructure:"otlp-addr"`

	QueueWorkers       int `mapstructure:"queue-workers"`
	QueueMaxDeliveries int `mapstructure:"queue-max-deliveries"`
	QueueBuffer        int `mapstructure:"queue-buffer-size"`

	FeedInterval  time.Duration `mapstructure:"feed-interval"`
	FeedBatchSize int           `mapstructure:"feed-batch-size"`
	LeasePath     string        `mapstructure:"lease-path"`

	CacheTTL         time.Duration `mapstructure:"cache-ttl"`
	CacheMaxLogs     int           `mapstructure:"cache-max-logs"`
	CacheMaxInsights int           `mapstructure:"cache-max-insights"`

	HistoryPath string `mapstructure:"history-path"`

	OpenAIAPIKey   string `mapstructure:"openai-api-key"`
	OpenAIBaseURL  string `mapstructure:"openai-base-url"`
	EmbeddingModel string `mapstructure:"embedding-model"`

	ForwardEnabled     bool   `mapstructure:"forward-enabled"`
	ForwardWorkspaceID string `mapstructure:"forward-workspace-id"`
	ForwardSharedKey   string `mapstructure:"forward-shared-key"`
	ForwardLogType     string `mapstructure:"forward-log-type"`

	BackupEnabled  bool          `mapstructure:"backup-enabled"`
	BackupInterval time.Duration `mapstructure:"backup-interval"`
	BackupLocalDir string        `mapstructure:"backup-local-dir"`
	BackupKeepLast int           `mapstructure:"backup-keep-last"`
	BackupBucket   string        `mapstructure:"backup-bucket-url"`
	BackupS3Region string        `mapstructure:"backup-s3-region"`
	BackupS3Access string        `mapstructure:"backup-s3-access-key"`
	BackupS3Secret string        `mapstructure:"backup-s3-secret-key"`

	ConfigPath string `mapstructure:"-"` // not from config file
}
