// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cartable/internal/account"
	"github.com/hitoshi/cartable/internal/adapter"
	"github.com/hitoshi/cartable/internal/adapter/feednews"
	"github.com/hitoshi/cartable/internal/config"
	"github.com/hitoshi/cartable/internal/database"
	"github.com/hitoshi/cartable/internal/handler"
	"github.com/hitoshi/cartable/internal/logger"
	"github.com/hitoshi/cartable/internal/metrics"
	"github.com/hitoshi/cartable/internal/middleware"
	"github.com/hitoshi/cartable/internal/notify"
	"github.com/hitoshi/cartable/internal/repository"
	"github.com/hitoshi/cartable/internal/security"
	"github.com/hitoshi/cartable/internal/service"
	"github.com/hitoshi/cartable/internal/store"
	"github.com/hitoshi/cartable/internal/worker/background"
	"github.com/hitoshi/cartable/internal/worker/cleanup"
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

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
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

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// buildCore は両モード共通のコア依存関係を構築する。
// 永続化リポジトリ、ドメインストア、アダプタレジストリ、ディスパッチャ、
// アカウントレジストリを生成し、永続化済みアカウント一覧を読み込む。
func buildCore(ctx context.Context, db *sql.DB, cfg *config.Config, collector metrics.MetricsCollector) (*account.Registry, *service.Dispatcher, *store.Stores, repository.StateRepository, error) {
	stateRepo := repository.NewPostgresStateRepo(db)
	stores := store.NewStores(stateRepo)

	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	newsSource := feednews.NewSource(
		ssrfGuard, sanitizer, slog.Default(),
		cfg.FetchTimeout, cfg.FetchMaxSize,
	)
	registry := adapter.NewRegistry(
		adapter.NewLocalAdapter(newsSource),
	)

	accounts := account.NewRegistry(stateRepo, stores, nil, slog.Default())
	if err := accounts.Load(ctx); err != nil {
		return nil, nil, nil, nil, err
	}

	dispatcher := service.NewDispatcher(registry, stores, accounts, collector, slog.Default(), cfg.FetchTimeout)

	return accounts, dispatcher, stores, stateRepo, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスの初期化
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 3. コア依存関係の構築（フォアグラウンド更新もメトリクス計測の対象）
	accounts, dispatcher, stores, _, err := buildCore(context.Background(), db, cfg, collector)
	if err != nil {
		return fmt.Errorf("failed to build core dependencies: %w", err)
	}

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:      slog.Default(),
		RateLimiter: rateLimiter,

		AccountService:  accounts,
		AccountProvider: accounts,
		DataService:     dispatcher,
		Stores:          stores,

		HealthChecker: db,
		Gatherer:      promRegistry,
	}

	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、バックグラウンド同期とクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// 2. メトリクスの初期化
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 3. コア依存関係と通知の構築
	accounts, dispatcher, stores, stateRepo, err := buildCore(ctx, db, cfg, collector)
	if err != nil {
		return fmt.Errorf("failed to build core dependencies: %w", err)
	}

	notifier := notify.NewDispatcher(
		notify.NewLogChannel(slog.Default()),
		collector,
		slog.Default(),
	)

	// 4. バックグラウンド同期ランナーの初期化
	runner := background.NewRunner(
		accounts, dispatcher, notifier, stores, collector, slog.Default(),
	)
	registrar := background.NewRegistrar(
		runner, slog.Default(), cfg.SyncInterval, cfg.BackgroundSupported,
	)

	// 5. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, stateRepo, slog.Default())
	cleanupJob.RetentionDays = cfg.CleanupRetentionDays

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Bool("background_supported", cfg.BackgroundSupported),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 同期レジストラをメインgoroutineで実行（ブロッキング）
	registrar.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
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
