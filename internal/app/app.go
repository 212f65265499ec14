// Package app はアプリケーション全体の起動とワイヤリングを行う。
//
// 1つのバイナリがサーバーコマンド（serve/migrate/healthcheck）と
// CLIクライアントコマンド（login/catalog/borrow等）の両方を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/toshokan/internal/auth"
	"github.com/hitoshi/toshokan/internal/books"
	"github.com/hitoshi/toshokan/internal/config"
	"github.com/hitoshi/toshokan/internal/database"
	"github.com/hitoshi/toshokan/internal/handler"
	"github.com/hitoshi/toshokan/internal/lending"
	"github.com/hitoshi/toshokan/internal/logger"
	"github.com/hitoshi/toshokan/internal/metrics"
	"github.com/hitoshi/toshokan/internal/middleware"
	"github.com/hitoshi/toshokan/internal/repository"
	"github.com/hitoshi/toshokan/internal/security"
)

// Init はサーバーアプリケーションの初期化を行う。
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

	// クライアントコマンドはサーバー設定もDBも不要
	if cmd.IsClientCommand() {
		return runClient(w, cmd, args[1:])
	}

	if cmd == CommandHelp {
		printUsage(w)
		return nil
	}

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
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
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

	// 2. リポジトリの初期化
	bookRepo := repository.NewPostgresBookRepo(db)
	categoryRepo := repository.NewPostgresCategoryRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	loanRepo := repository.NewPostgresLoanRepo(db)
	statsRepo := repository.NewPostgresStatsRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. セキュリティサービスの初期化
	urlGuard := security.NewURLGuard()
	sanitizer := security.NewDescriptionSanitizer()

	// 5. ドメインサービスの初期化
	coverFetcher := books.NewCoverFetcher(urlGuard, cfg.CoverFetchTimeout, cfg.CoverMaxSize, collector)
	bookService := books.NewService(bookRepo, categoryRepo, sanitizer, coverFetcher)

	authService := auth.NewService(userRepo)

	lendingService := lending.NewService(loanRepo, bookRepo, userRepo, statsRepo, lending.Config{
		LoanPeriodDays: cfg.LoanPeriodDays,
	})

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		Collector: collector,
		Gatherer:  registry,

		AuthService:    authService,
		UserService:    authService,
		BookService:    bookService,
		LendingService: lendingService,

		DB: db,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
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

// printUsage は使い方を表示する。
func printUsage(w io.Writer) {
	fmt.Fprint(w, `toshokan - 学校図書館の蔵書・貸出管理

サーバーコマンド:
  serve        APIサーバーを起動する（デフォルト）
  migrate      データベースマイグレーションを適用する
  healthcheck  起動中のサーバーの稼働状態を確認する

クライアントコマンド（要 TOSHOKAN_API_URL）:
  login        ログインして資格情報を保存する
  logout       保存済みの資格情報を破棄する
  whoami       ログイン中の利用者を表示する
  catalog      蔵書の一覧・検索・登録・削除
  book         蔵書の詳細を表示する
  borrow       蔵書を借りる
  loans        貸出一覧を表示する
  return       返却処理を行う（司書）
  users        利用者の一覧・登録・削除（司書）
  stats        ダッシュボード統計を表示する（司書）
`)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
