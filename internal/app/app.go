package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/listingwatch/internal/config"
	"github.com/hitoshi/listingwatch/internal/database"
	"github.com/hitoshi/listingwatch/internal/handler"
	"github.com/hitoshi/listingwatch/internal/logger"
	"github.com/hitoshi/listingwatch/internal/metrics"
	"github.com/hitoshi/listingwatch/internal/middleware"
	"github.com/hitoshi/listingwatch/internal/preview"
	"github.com/hitoshi/listingwatch/internal/security"

	"golang.org/x/time/rate"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルの反映
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("invalid LOG_LEVEL, falling back to info", slog.String("error", err.Error()))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。CLIサブコマンドの結果は標準出力に書き出す。
func Run(w io.Writer, args []string) error {
	return run(w, os.Stdout, args)
}

func run(w, out io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store_driver", cfg.StoreDriver),
		slog.Bool("headless", cfg.FetchHeadless),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCreate:
		return runCreate(cfg, out, rest)
	case CommandCheck:
		return runCheck(cfg, out, rest)
	case CommandList:
		return runList(cfg, out, rest)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、スケジューラとHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. 依存関係の構築
	c, err := buildComponents(cfg, slog.Default(), resolverSignal)
	if err != nil {
		return err
	}
	defer c.Close()

	// 2. スケジューラとクリーンアップ
	scheduler := c.newScheduler(cfg)
	if cfg.SchedulerAutostart {
		scheduler.Start(ctx)
	}
	c.startCleanup(ctx, cfg)

	// 3. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
	if cfg.RateLimitGeneral > 0 {
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		HealthChecker:  c.store,
		MetricsHandler: metrics.Handler(c.registry),

		Tracker:  c.tracker,
		Searches: c.store.Searches(),
		Items:    c.store.Items(),
		Images:   preview.NewImageFetcher(security.NewSSRFGuard(), slog.Default()),
		BaseURL:  cfg.BaseURL,

		Scheduler: scheduler,
	}
	// 非ヘッドレス時のみチャレンジ解決シグナルを受け付ける
	if c.signal != nil {
		deps.Resolver = c.signal
	}

	// 4. HTTPサーバーの起動
	// 手動チェックは人間らしい待機を含むため書き込みタイムアウトを長めに取る
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("base_url", cfg.BaseURL),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			scheduler.Stop()
			return fmt.Errorf("server listen error: %w", err)
		}
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 実行中のチェックは中断せず完了を待つ
	scheduler.Stop()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// スケジューラとスナップショットのクリーンアップを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(cfg, slog.Default(), resolverPrompt)
	if err != nil {
		return err
	}
	defer c.Close()

	c.startCleanup(ctx, cfg)

	slog.Info("worker starting",
		slog.Duration("check_interval", cfg.CheckInterval),
		slog.Duration("min_search_interval", cfg.MinSearchInterval),
	)

	scheduler := c.newScheduler(cfg)
	scheduler.Start(ctx)

	// シグナル受信時は停止を要求し、実行中のチェックの完了を待つ
	<-ctx.Done()
	slog.Info("shutting down worker...")
	scheduler.Stop()

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// PostgreSQLではすべての未適用マイグレーションを順番に適用し、
// SQLiteでは組み込みスキーマを適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver == config.StoreSQLite {
		slog.Info("applying sqlite schema", slog.String("path", cfg.SQLitePath))
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		db.Close()
		slog.Info("sqlite schema applied successfully")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL, slog.Default()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
