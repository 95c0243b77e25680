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

	"github.com/goccy/go-json"
	"github.com/hitoshi/geotrail/internal/analytics"
	"github.com/hitoshi/geotrail/internal/config"
	"github.com/hitoshi/geotrail/internal/database"
	"github.com/hitoshi/geotrail/internal/export"
	"github.com/hitoshi/geotrail/internal/handler"
	"github.com/hitoshi/geotrail/internal/ingest"
	"github.com/hitoshi/geotrail/internal/logger"
	"github.com/hitoshi/geotrail/internal/metrics"
	"github.com/hitoshi/geotrail/internal/middleware"
	"github.com/hitoshi/geotrail/internal/model"
	"github.com/hitoshi/geotrail/internal/repository"
	"github.com/hitoshi/geotrail/internal/worker/reset"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("invalid LOG_LEVEL, falling back to info", slog.String("error", err.Error()))
	}
	logger.SetupDefault(w, level)

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
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(ctx, cfg)
	case CommandReset:
		return runReset(ctx, cfg)
	case CommandIngest:
		return runIngest(ctx, cfg)
	case CommandReport:
		return runReport(ctx, cfg, w, commandArg(args, 0))
	case CommandExport:
		return runExport(ctx, cfg, commandArg(args, 0))
	default:
		return runServe(ctx, cfg)
	}
}

// repositories はPostgreSQL実装のリポジトリ一式。
type repositories struct {
	users       *repository.PostgresUserRepo
	activities  *repository.PostgresActivityRepo
	trackPoints *repository.PostgresTrackPointRepo
}

func newRepositories(db *sql.DB) repositories {
	return repositories{
		users:       repository.NewPostgresUserRepo(db),
		activities:  repository.NewPostgresActivityRepo(db),
		trackPoints: repository.NewPostgresTrackPointRepo(db),
	}
}

// runServe は集計APIサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.ConnectWithRetry(ctx, cfg.DatabaseURL, cfg.DBConnectRetries, slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. サービスの初期化
	repos := newRepositories(db)
	service := analytics.NewService(repos.users, repos.activities, repos.trackPoints)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. ルーターの構築（RATE_LIMIT_GENERALはreq/min単位）
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral), slog.Default())
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:    db,
		RateLimiter:      rateLimiter,
		Metrics:          collector,
		MetricsRoute:     metrics.Handler(registry),
		Logger:           slog.Default(),
		AnalyticsService: service,
	})

	// 5. HTTPサーバーの起動
	// 全トラックポイントを走査するクエリがあるため書き込みタイムアウトは長めにとる
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Int("rate_limit_per_min", cfg.RateLimitGeneral),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行し、管理対象テーブルを表示する。
func runMigrate(ctx context.Context, cfg *config.Config) error {
	db, err := database.ConnectWithRetry(ctx, cfg.DatabaseURL, cfg.DBConnectRetries, slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("running database migrations")

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	tables, err := database.ListTables(ctx, db)
	if err != nil {
		return err
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Any("tables", tables),
	)
	return nil
}

// runReset は管理対象テーブルを空にする。
func runReset(ctx context.Context, cfg *config.Config) error {
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := reset.NewResetJob(db, slog.Default(), database.ManagedTables).Run(ctx); err != nil {
		return err
	}

	tables, err := database.ListTables(ctx, db)
	if err != nil {
		return err
	}
	slog.Info("store reset", slog.Any("tables", tables))
	return nil
}

// runIngest はスキーマを最新にしてからデータセットを取り込む。
// INGEST_RESETがtrueの場合は取り込み前にストアを空にする。
func runIngest(ctx context.Context, cfg *config.Config) error {
	db, err := database.ConnectWithRetry(ctx, cfg.DatabaseURL, cfg.DBConnectRetries, slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if cfg.IngestReset {
		if err := reset.NewResetJob(db, slog.Default(), database.ManagedTables).Run(ctx); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	repos := newRepositories(db)
	pipeline := ingest.NewPipeline(repos.users, repos.activities, repos.trackPoints, collector, slog.Default(), ingest.Config{
		DatasetDir:     cfg.DatasetDir,
		StopAtUser:     cfg.IngestStopAtUser,
		MaxTrackPoints: cfg.IngestMaxTrackPoints,
		SkipMalformed:  cfg.IngestSkipMalformed,
	})

	if _, err := pipeline.Run(ctx); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	logMetrics(slog.Default(), registry)
	return nil
}

// runReport は全集計クエリを実行し、結果を1つのJSONドキュメントとして出力する。
// pathが指定された場合はそのファイルに、それ以外はwに書き込む。
func runReport(ctx context.Context, cfg *config.Config, w io.Writer, path string) error {
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	repos := newRepositories(db)
	service := analytics.NewService(repos.users, repos.activities, repos.trackPoints)

	params := analytics.ReportParams{
		Distance: model.ActivityFilter{
			UserID: cfg.ReportUserID,
			Year:   cfg.ReportYear,
			Mode:   cfg.ReportMode,
		},
		TaxiMode: cfg.ReportTaxiMode,
		Region:   analytics.NewRegion(cfg.ReportRegionLat, cfg.ReportRegionLon),
	}

	report, err := service.RunReport(ctx, params, slog.Default())
	if err != nil {
		return err
	}

	out := w
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// runExport は全トラックポイントをParquetファイルに書き出す。
// pathが空の場合はEXPORT_PATHを使う。
func runExport(ctx context.Context, cfg *config.Config, path string) error {
	if path == "" {
		path = cfg.ExportPath
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	exporter := export.NewExporter(repository.NewPostgresTrackPointRepo(db), slog.Default())
	rows, err := exporter.ExportFile(ctx, path)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	slog.Info("export completed", slog.String("path", path), slog.Int("rows", rows))
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

// logMetrics は取り込みで記録したカウンターの合計をログに出す。
func logMetrics(l *slog.Logger, gatherer prometheus.Gatherer) {
	families, err := gatherer.Gather()
	if err != nil {
		l.Warn("failed to gather metrics", slog.String("error", err.Error()))
		return
	}

	var attrs []any
	for _, mf := range families {
		if mf.GetType() != dto.MetricType_COUNTER {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		attrs = append(attrs, slog.Float64(mf.GetName(), total))
	}
	l.Info("ingest metrics", attrs...)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
