package app

import (
	"context"
	"database/sql"
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
	"golang.org/x/time/rate"

	"github.com/hitoshi/clubcal/internal/auth"
	"github.com/hitoshi/clubcal/internal/config"
	"github.com/hitoshi/clubcal/internal/database"
	"github.com/hitoshi/clubcal/internal/event"
	"github.com/hitoshi/clubcal/internal/group"
	"github.com/hitoshi/clubcal/internal/handler"
	"github.com/hitoshi/clubcal/internal/logger"
	"github.com/hitoshi/clubcal/internal/membership"
	"github.com/hitoshi/clubcal/internal/metrics"
	"github.com/hitoshi/clubcal/internal/middleware"
	"github.com/hitoshi/clubcal/internal/provider"
	"github.com/hitoshi/clubcal/internal/repository"
	"github.com/hitoshi/clubcal/internal/security"
	"github.com/hitoshi/clubcal/internal/user"
	"github.com/hitoshi/clubcal/internal/worker/cleanup"
)

const dbPingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定ファイルのログレベルを反映する
	logger.SetupDefault(w, cfg.LogLevel)

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
		slog.String("provider", cfg.Provider),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, ParseMigrateDirection(args))
	default:
		return runServe(cfg)
	}
}

// openDatabase は台帳DBへの接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// newConnector は設定に応じたカレンダープロバイダーのConnectorとトークン検証器を返す。
// fakeの場合は同じインメモリプロバイダーが両方を担う。
func newConnector(cfg *config.Config, oauthProvider *auth.GoogleOAuthProvider) (provider.Connector, provider.TokenVerifier) {
	if cfg.Provider == config.ProviderFake {
		slog.Warn("using in-memory calendar provider")
		fake := provider.NewFakeProvider()
		return fake, fake
	}
	return provider.NewGoogleConnector(provider.GoogleConfig{Timeout: cfg.ProviderTimeout}), oauthProvider
}

// newRateLimiterConfig は設定のreq/minをreq/secのレート制限設定に変換する。
func newRateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitGroupCreate > 0 {
		rl.GroupCreateRate = rate.Limit(float64(cfg.RateLimitGroupCreate) / 60.0)
		rl.GroupCreateBurst = cfg.RateLimitGroupCreate
	}
	return rl
}

// newMetricsRegistry はランタイムメトリクスを含むレジストリとCollectorを生成する。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildRouterDeps は台帳DBを元に全サービスを組み立て、ルーターの依存関係を返す。
func buildRouterDeps(cfg *config.Config, db *sql.DB, reg *prometheus.Registry, collector *metrics.Collector) *handler.RouterDeps {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	credentialRepo := repository.NewPostgresCredentialRepo(db)
	groupRepo := repository.NewPostgresGroupRepo(db)
	membershipRepo := repository.NewPostgresMembershipRepo(db)

	// 2. プロバイダーの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	connector, verifier := newConnector(cfg, oauthProvider)
	binder := provider.NewSessionBinder(credentialRepo, provider.Instrument(connector, collector))

	// 3. ドメインサービスの初期化
	sanitizer := security.NewNameSanitizer()

	groupService := group.NewService(groupRepo, membershipRepo, binder, sanitizer, cfg.AppAccountEmail)
	groupService.SetRecorder(collector)

	coordinator := membership.NewCoordinator(groupRepo, membershipRepo, binder)
	coordinator.SetRecorder(collector)

	eventService := event.NewService(binder, groupService, sanitizer, time.Local)
	eventService.SetRecorder(collector)

	userService := user.NewService(userRepo, profileRepo, sessionRepo, credentialRepo, membershipRepo)

	authService := auth.NewService(auth.ServiceDeps{
		OAuth:       oauthProvider,
		Verifier:    verifier,
		Users:       userRepo,
		Credentials: credentialRepo,
		Sessions:    sessionRepo,
		Binder:      binder,
		Reconciler:  groupService,
	}, auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge})

	// 4. ルーター依存関係の構築
	return &handler.RouterDeps{
		SessionFinder:      sessionRepo,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        middleware.NewRateLimiter(newRateLimiterConfig(cfg)),
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger: slog.Default(),

		HealthChecker:   db,
		MetricsGatherer: reg,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		GroupService: handler.NewGroupServiceAdapter(groupService, coordinator),
		EventService: handler.NewEventServiceAdapter(eventService),
		UserService:  handler.NewUserServiceAdapter(userService),
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	reg, collector := newMetricsRegistry()
	deps := buildRouterDeps(cfg, db, reg, collector)
	defer deps.RateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server)
}

// serveUntilSignal はHTTPサーバーを起動し、シグナル受信でグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}

	slog.Info("shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 起動直後にクリーンアップジョブを1回実行し、以降はCLEANUP_SCHEDULEに従って実行する。
// /metrics を公開し、SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg, collector := newMetricsRegistry()

	cleanupJob := cleanup.NewCleanupJob(
		repository.NewPostgresSessionRepo(db),
		repository.NewPostgresCredentialRepo(db),
		slog.Default(),
	)
	cleanupJob.SetRecorder(collector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler, err := newCleanupScheduler(ctx, cfg.CleanupSchedule, cleanupJob)
	if err != nil {
		return err
	}

	// 起動直後に1回実行
	if err := cleanupJob.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	scheduler.Start()
	slog.Info("worker starting", slog.String("cleanup_schedule", cfg.CleanupSchedule))

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      metrics.SetupMetricsRoute(reg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	err = serveUntilSignal(server)

	cancel()
	<-scheduler.Stop().Done()
	slog.Info("worker stopped gracefully")
	return err
}

// runMigrate はデータベースマイグレーションを実行する。
// up: 未適用のマイグレーションを適用、down: すべて取り消し、version: 適用済みバージョンを表示。
func runMigrate(cfg *config.Config, direction MigrateDirection) error {
	slog.Info("running database migrations",
		slog.String("direction", string(direction)),
		slog.String("database", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch direction {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
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
