package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/loginsight/loginsight/internal/aggregate"
	"github.com/loginsight/loginsight/internal/backup"
	"github.com/loginsight/loginsight/internal/cache"
	"github.com/loginsight/loginsight/internal/changefeed"
	"github.com/loginsight/loginsight/internal/docstore"
	"github.com/loginsight/loginsight/internal/embed"
	"github.com/loginsight/loginsight/internal/forward"
	"github.com/loginsight/loginsight/internal/history"
	"github.com/loginsight/loginsight/internal/httpserver"
	"github.com/loginsight/loginsight/internal/ingest"
	"github.com/loginsight/loginsight/internal/model"
	"github.com/loginsight/loginsight/internal/otlprecv"
	"github.com/loginsight/loginsight/internal/queue"
	"github.com/loginsight/loginsight/internal/search"
	"golang.org/x/sync/errgroup"
)

// runServer boots the full pipeline: queue consumers feeding the document
// store, the change-feed poller driving insight aggregation, and the HTTP,
// TCP and OTLP ingest surfaces.
func runServer(cfg appConfig) error {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	for _, p := range []string{cfg.DBPath, cfg.LeasePath, cfg.HistoryPath} {
		if p != "" {
			if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
				return fmt.Errorf("creating data directory for %s: %w", p, err)
			}
		}
	}

	store, err := docstore.Shared(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize document store: %w", err)
	}
	defer store.Close()

	// Retention is disabled by default; the pipeline itself never deletes.
	retentionCleaner := docstore.NewRetentionCleaner(store, docstore.RetentionConfig{
		RetentionDays: cfg.LogRetention,
	})
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	backupManager, err := backup.NewManager(store, backup.Config{
		Enabled:     cfg.BackupEnabled,
		Interval:    cfg.BackupInterval,
		LocalDir:    cfg.BackupLocalDir,
		KeepLast:    cfg.BackupKeepLast,
		BucketURL:   cfg.BackupBucket,
		S3Region:    cfg.BackupS3Region,
		S3AccessKey: cfg.BackupS3Access,
		S3SecretKey: cfg.BackupS3Secret,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backups: %w", err)
	}
	if backupManager != nil {
		defer backupManager.Stop()
	}

	lease, err := changefeed.OpenLease(cfg.LeasePath)
	if err != nil {
		return fmt.Errorf("failed to open change-feed lease: %w", err)
	}

	aggregator := aggregate.New(store)
	poller := changefeed.NewPoller(store, lease, aggregator.HandleBatch, changefeed.Config{
		Interval:  cfg.FeedInterval,
		BatchSize: cfg.FeedBatchSize,
	})

	consumer := ingest.NewConsumer(ingest.NewWriter(store))
	broker := queue.NewBroker(consumer.Handle, queue.BrokerConfig{
		Workers:       cfg.QueueWorkers,
		MaxDeliveries: cfg.QueueMaxDeliveries,
		BufferSize:    cfg.QueueBuffer,
	})

	docCache := cache.New(store, cache.Config{
		TTL:         cfg.CacheTTL,
		MaxLogs:     cfg.CacheMaxLogs,
		MaxInsights: cfg.CacheMaxInsights,
	})

	hist, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return fmt.Errorf("failed to open search history: %w", err)
	}

	engine := search.New(docCache, hist, buildEmbeddingProvider(cfg))

	forwarder, err := forward.NewClient(forward.Config{
		Enabled:     cfg.ForwardEnabled,
		WorkspaceID: cfg.ForwardWorkspaceID,
		SharedKey:   cfg.ForwardSharedKey,
		LogType:     cfg.ForwardLogType,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize log forwarder: %w", err)
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now — not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	broker.Start(ctx)
	defer broker.Stop()

	poller.Start(ctx)
	defer poller.Stop()

	var tcpSource *queue.TCPSource
	if cfg.TCPEnabled {
		tcpSource = queue.NewTCPSource(cfg.TCPAddr, broker)
		if err := tcpSource.Start(); err != nil {
			return fmt.Errorf("failed to start TCP ingest: %w", err)
		}
		defer tcpSource.Stop()
	}

	receiver := otlprecv.NewReceiver(broker)
	var otlpServer *otlprecv.Server
	if cfg.OTLPEnabled {
		otlpServer = otlprecv.NewServer(cfg.OTLPAddr, receiver)
		if err := otlpServer.Start(); err != nil {
			return fmt.Errorf("failed to start OTLP ingest: %w", err)
		}
		defer otlpServer.Stop()
	}

	var apiServer *httpserver.Server
	if cfg.APIEnabled {
		apiServer = httpserver.NewServer(cfg.APIAddr, httpserver.Deps{
			Store:     store,
			Searcher:  engine,
			Publisher: broker,
			OTLP:      receiver,
			Forwarder: forwarder,
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	printStartupSummary(cfg)

	// Use errgroup for concurrent goroutine lifecycle management.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	cancel()
	signal.Stop(sigCh)

	return nil
}

func buildEmbeddingProvider(cfg appConfig) model.EmbeddingProvider {
	if cfg.OpenAIAPIKey != "" {
		provider, err := embed.NewOpenAIProvider(embed.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.EmbeddingModel,
		})
		if err == nil {
			return provider
		}
		log.Printf("embed: falling back to local hashing provider: %v", err)
	}
	return embed.NewHashProvider()
}

func printStartupSummary(cfg appConfig) {
	var lines []string
	lines = append(lines, "")
	lines = append(lines, "  LogInsight v"+version)
	lines = append(lines, "")

	status := func(enabled bool, label, addr string) string {
		if enabled {
			return fmt.Sprintf("  [on]  %-12s %s", label, addr)
		}
		return fmt.Sprintf("  [off] %-12s disabled", label)
	}

	lines = append(lines, status(cfg.APIEnabled, "HTTP API", cfg.APIAddr))
	lines = append(lines, status(cfg.TCPEnabled, "TCP Ingest", cfg.TCPAddr))
	lines = append(lines, status(cfg.OTLPEnabled, "OTLP Ingest", cfg.OTLPAddr))
	lines = append(lines, status(true, "Storage", shortenPath(cfg.DBPath)))
	lines = append(lines, status(cfg.BackupEnabled, "Snapshots", shortenPath(cfg.BackupLocalDir)))
	lines = append(lines, status(cfg.ForwardEnabled, "Forwarding", cfg.ForwardWorkspaceID))
	if cfg.ConfigPath != "" {
		lines = append(lines, status(true, "Config", shortenPath(cfg.ConfigPath)))
	}
	lines = append(lines, "")
	lines = append(lines, "  Press Ctrl+C to stop")
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
