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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/citycontent/internal/config"
	"github.com/hitoshi/citycontent/internal/database"
	"github.com/hitoshi/citycontent/internal/handler"
	"github.com/hitoshi/citycontent/internal/localstore"
	"github.com/hitoshi/citycontent/internal/logger"
	"github.com/hitoshi/citycontent/internal/memcache"
	"github.com/hitoshi/citycontent/internal/metrics"
	"github.com/hitoshi/citycontent/internal/middleware"
	"github.com/hitoshi/citycontent/internal/remote"
	"github.com/hitoshi/citycontent/internal/repository"
	"github.com/hitoshi/citycontent/internal/resolver"
	"github.com/hitoshi/citycontent/internal/snapshot"
	"github.com/hitoshi/citycontent/internal/worker/refresh"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

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
	cmd, rest := ParseCommand(args)

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
		slog.String("app_env", cfg.AppEnv),
		slog.Duration("cache_ttl", cfg.CacheTTL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandSync:
		return runSync(cfg)
	case CommandMigrate:
		return runMigrate(cfg, rest)
	default:
		return runServe(cfg)
	}
}

// components はコマンド間で共通の依存関係。
type components struct {
	repo      repository.ContentRepository
	source    *remote.Source
	cache     *memcache.Store
	snapshot  *snapshot.Store
	local     *localstore.Store
	queue     *refresh.Queue
	syncer    *refresh.Syncer
	engine    *resolver.Engine
	registry  *prometheus.Registry
	collector *metrics.Collector
	closeFn   func()
}

// Close は接続を閉じる。
func (c *components) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// openRepository はDATABASE_URLのスキームに応じてリモートストアのリポジトリを開く。
// 接続の確立は最初のクエリまで遅延されるため、ストアが停止していても失敗しない。
func openRepository(ctx context.Context, databaseURL string) (repository.ContentRepository, func(), error) {
	if database.IsMongoURL(databaseURL) {
		client, db, err := database.OpenMongo(ctx, databaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open mongo: %w", err)
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				slog.Warn("failed to disconnect mongo", slog.String("error", err.Error()))
			}
		}
		return repository.NewMongoContentRepo(db), closeFn, nil
	}

	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return repository.NewPostgresContentRepo(db), func() { db.Close() }, nil
}

// buildComponents は設定から全依存関係をワイヤリングする。
// バックグラウンドキューは起動しない。呼び出し側でStartする。
func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	log := slog.Default()

	repo, closeFn, err := openRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	source := remote.NewSource(repo, remote.Timeouts{
		Homepage:   cfg.RemoteTimeoutHomepage,
		Collection: cfg.RemoteTimeoutCollection,
		Item:       cfg.RemoteTimeoutItem,
	}, log)

	cache := memcache.New(time.Now, cfg.CacheTTL)
	snap := snapshot.NewStore(cfg.SnapshotPath, log)
	local := localstore.NewStore(cfg.LocalStorePath)

	queue := refresh.NewQueue(cfg.RefreshQueueSize, log, collector)
	syncer := refresh.NewSyncer(source, local, snap, queue, log, collector)

	engine := resolver.NewEngine(resolver.Deps{
		Remote:    source,
		Cache:     cache,
		Snapshot:  snap,
		Local:     local,
		Refresher: syncer,
		Logger:    log,
		Metrics:   collector,
		Clock:     time.Now,
	})

	return &components{
		repo:      repo,
		source:    source,
		cache:     cache,
		snapshot:  snap,
		local:     local,
		queue:     queue,
		syncer:    syncer,
		engine:    engine,
		registry:  registry,
		collector: collector,
		closeFn:   closeFn,
	}, nil
}

// newRouter はAPIサーバーのルーターを構築する。
func newRouter(cfg *config.Config, c *components, rl *middleware.RateLimiter) http.Handler {
	return handler.NewRouter(&handler.RouterDeps{
		Reader:            c.engine,
		Writer:            c.engine,
		HealthChecker:     c.source,
		MetricsHandler:    metrics.Handler(c.registry),
		StatusRecorder:    c.collector,
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		AdminToken:        cfg.AdminToken,
	})
}

// runServe はAPIサーバーモードで起動する。
// 依存関係をワイヤリングし、バックグラウンドキューとHTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, cfg.RemoteTimeoutItem)
	if err := c.source.Ping(pingCtx); err != nil {
		slog.Warn("remote store unreachable at startup; serving from fallback tiers",
			slog.String("error", err.Error()),
		)
	} else {
		slog.Info("remote store connection established")
	}
	pingCancel()

	if cfg.AdminToken == "" {
		slog.Warn("ADMIN_TOKEN is not set; admin API is disabled")
	}

	// バックグラウンドの書き込みキューを起動
	c.queue.Start(ctx)

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitAdmin))
	defer rl.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newRouter(cfg, c, rl),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		cancel()
		c.queue.Wait()
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 実行中のタスクを待ってから終了する。積まれたままのタスクは破棄する
	cancel()
	c.queue.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// SYNC_INTERVALごとにリモートストアの全件でローカルストアとスナップショットを書き直す。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.String("snapshot_path", cfg.SnapshotPath),
		slog.String("local_store_path", cfg.LocalStorePath),
	)

	// 再同期スケジューラをメインgoroutineで実行（ブロッキング）
	refresh.NewScheduler(c.syncer, slog.Default()).Start(ctx, cfg.SyncInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runSync はリモートストアから1回だけ再同期する。
func runSync(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.syncer.Resync(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	slog.Info("sync completed",
		slog.String("snapshot_path", cfg.SnapshotPath),
		slog.String("local_store_path", cfg.LocalStorePath),
	)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしですべての未適用マイグレーションを適用し、"down" で直近の1つを戻す。
// MongoDBはスキーマを持たないため何もしない。
func runMigrate(cfg *config.Config, args []string) error {
	if database.IsMongoURL(cfg.DatabaseURL) {
		slog.Info("skipping migrations for mongo backend")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if len(args) > 0 && args[0] == "down" {
		version, err := database.RollbackMigration(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database migration rolled back", slog.Uint64("version", uint64(version)))
		return nil
	}

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
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
