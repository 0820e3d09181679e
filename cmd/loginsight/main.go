package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/loginsight/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("LogInsight - Log Ingestion and Insight Service\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	dataDir := filepath.Join(home, ".local", "share", "loginsight")

	v := viper.New()
	v.SetEnvPrefix("LOGINSIGHT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("db-path", filepath.Join(dataDir, "loginsight.duckdb"))
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("log-retention", defaultLogRetention)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("tcp-enabled", true)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("otlp-enabled", true)
	v.SetDefault("otlp-port", defaultOTLPPort)
	v.SetDefault("queue-workers", defaultQueueWorkers)
	v.SetDefault("queue-max-deliveries", defaultMaxDeliveries)
	v.SetDefault("queue-buffer-size", defaultQueueBuffer)
	v.SetDefault("feed-interval", defaultFeedInterval)
	v.SetDefault("feed-batch-size", defaultFeedBatchSize)
	v.SetDefault("lease-path", filepath.Join(dataDir, "feed-lease.json"))
	v.SetDefault("cache-ttl", defaultCacheTTL)
	v.SetDefault("cache-max-logs", 0)
	v.SetDefault("cache-max-insights", 0)
	v.SetDefault("history-path", filepath.Join(dataDir, "search_history.json"))
	v.SetDefault("forward-enabled", false)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-local-dir", filepath.Join(dataDir, "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeep)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "loginsight", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.TCPPort <= 0 || cfg.TCPPort > 65535 {
		return cfg, fmt.Errorf("invalid tcp-port: %d", cfg.TCPPort)
	}
	if cfg.OTLPPort <= 0 || cfg.OTLPPort > 65535 {
		return cfg, fmt.Errorf("invalid otlp-port: %d", cfg.OTLPPort)
	}

	// Expand ~ in data paths
	for _, p := range []*string{&cfg.DBPath, &cfg.LeasePath, &cfg.HistoryPath, &cfg.BackupLocalDir} {
		if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.OTLPAddr == "" {
		cfg.OTLPAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.OTLPPort))
	}

	return cfg, nil
}
