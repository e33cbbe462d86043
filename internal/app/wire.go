package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/listingwatch/internal/config"
	"github.com/hitoshi/listingwatch/internal/database"
	"github.com/hitoshi/listingwatch/internal/metrics"
	"github.com/hitoshi/listingwatch/internal/notify"
	"github.com/hitoshi/listingwatch/internal/repository"
	"github.com/hitoshi/listingwatch/internal/source"
	"github.com/hitoshi/listingwatch/internal/tracker"
	"github.com/hitoshi/listingwatch/internal/worker/cleanup"
	"github.com/hitoshi/listingwatch/internal/worker/schedule"
)

// openStore は設定されたドライバでDBを開き、リポジトリを束ねたStoreを返す。
func openStore(cfg *config.Config) (*sql.DB, *repository.SQLStore, error) {
	var (
		db     *sql.DB
		driver database.Driver
		err    error
	)

	switch cfg.StoreDriver {
	case config.StorePostgres:
		driver = database.DriverPostgres
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
	default:
		driver = database.DriverSQLite
		db, err = database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
	}

	store, err := repository.NewStore(db, driver)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	slog.Info("database connection established",
		slog.String("driver", string(driver)),
	)
	return db, store, nil
}

// resolverMode はチャレンジ検出時の解決手段の選び方。
type resolverMode int

const (
	// resolverPrompt は端末での入力待ち（CLIとworker）。
	resolverPrompt resolverMode = iota
	// resolverSignal はHTTPの /api/challenge/resolve による再開（serve）。
	resolverSignal
)

// components はサブコマンド間で共有する依存関係。
type components struct {
	db         *sql.DB
	store      *repository.SQLStore
	registry   *prometheus.Registry
	metrics    *metrics.Collector
	browser    *source.RodBrowser
	snapshots  *source.SnapshotStore
	signal     *source.SignalResolver
	dispatcher *notify.Dispatcher
	tracker    *tracker.Tracker
	logger     *slog.Logger
}

// buildComponents はストア、取得元、通知、Trackerをワイヤリングする。
// ヘッドレスモードではチャレンジを手動解決せず、即座にBlockedとして扱う。
func buildComponents(cfg *config.Config, logger *slog.Logger, mode resolverMode) (*components, error) {
	db, store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	c := &components{
		db:       db,
		store:    store,
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.metrics = metrics.NewCollector(c.registry)

	c.browser = source.NewRodBrowser(source.RodConfig{
		Headless:  cfg.FetchHeadless,
		RemoteURL: cfg.BrowserRemoteURL,
	}, logger)
	c.snapshots = source.NewSnapshotStore(cfg.SnapshotDir)

	opts := []source.Option{source.WithSnapshots(c.snapshots)}
	if !cfg.FetchHeadless {
		switch mode {
		case resolverSignal:
			c.signal = source.NewSignalResolver()
			opts = append(opts, source.WithResolver(c.signal))
		default:
			opts = append(opts, source.WithResolver(source.NewPromptResolver()))
		}
	}

	marketplace, err := source.NewMarketplace(source.Config{
		BaseURL:      cfg.MarketplaceURL,
		WaitCeiling:  cfg.FetchTimeout,
		PollInterval: cfg.FetchPollInterval,
		MinGap:       cfg.FetchMinGap,
		Humanize:     cfg.FetchHumanize,
	}, c.browser, logger, opts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to build listing source: %w", err)
	}

	sinks := []notify.Sink{notify.NewLogSink(logger)}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegramSink(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			// Telegramが使えなくてもログ通知で継続する
			logger.Warn("telegram sink disabled", slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, tg)
		}
	}
	c.dispatcher = notify.NewDispatcher(cfg.NotifyQueueSize, logger, c.metrics, sinks...)
	c.dispatcher.Start()

	c.tracker = tracker.New(
		store.Searches(), store.Items(), marketplace,
		c.dispatcher, c.metrics, logger,
		tracker.Config{
			BackfillMaxPages: cfg.BackfillMaxPages,
			RelevanceFilter:  cfg.RelevanceFilter,
		},
	)
	return c, nil
}

// newScheduler は設定値からSchedulerを生成する。
func (c *components) newScheduler(cfg *config.Config) *schedule.Scheduler {
	return schedule.NewScheduler(c.store.Searches(), c.tracker, c.logger, schedule.Config{
		Interval:    cfg.CheckInterval,
		MinInterval: cfg.MinSearchInterval,
	})
}

// startCleanup はスナップショットの日次クリーンアップをバックグラウンドで開始する。
func (c *components) startCleanup(ctx context.Context, cfg *config.Config) {
	job := cleanup.NewCleanupJob(c.snapshots, c.logger)
	if cfg.SnapshotRetentionDays > 0 {
		job.RetentionDays = cfg.SnapshotRetentionDays
	}
	go job.Start(ctx, 24*time.Hour)
}

// Close は通知キューを配送し切ってから、ブラウザとDBを閉じる。
func (c *components) Close() {
	if c.dispatcher != nil {
		c.dispatcher.Close()
	}
	if c.browser != nil {
		if err := c.browser.Close(); err != nil {
			c.logger.Warn("failed to close browser", slog.String("error", err.Error()))
		}
	}
	if c.db != nil {
		c.db.Close()
	}
}
