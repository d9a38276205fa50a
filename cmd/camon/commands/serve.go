package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/camon/backend/internal/api"
	"github.com/wonny/camon/backend/internal/api/handlers"
	"github.com/wonny/camon/backend/internal/archive"
	"github.com/wonny/camon/backend/internal/feed"
	"github.com/wonny/camon/backend/internal/ranking"
	"github.com/wonny/camon/backend/internal/scheduler"
	"github.com/wonny/camon/backend/internal/scheduler/jobs"
	"github.com/wonny/camon/backend/pkg/config"
	"github.com/wonny/camon/backend/pkg/database"
	"github.com/wonny/camon/backend/pkg/httputil"
	"github.com/wonny/camon/backend/pkg/logger"
	"github.com/wonny/camon/backend/pkg/redis"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "모니터링 서비스 시작",
	Long: `전체 모니터링 서비스를 시작합니다.

이 명령어는:
- 가격 피드 WebSocket 연결 + REST 폴러 시작
- 랭킹 엔진 연결 (Redis)
- 자정 랭킹 리셋 스케줄러 시작
- REST API 서버 시작

Endpoints:
  GET  /health                          - Health check
  GET  /api/ranking/groups              - 그룹 리더보드
  GET  /api/ranking/calls               - 콜 리더보드
  GET  /api/ranking/contract/{address}  - 컨트랙트 상세
  GET  /api/ranking/active              - 최근 1시간 활성 컨트랙트
  POST /api/ranking/reset               - 수동 리셋
  GET  /api/feed/status                 - 피드 상태

Example:
  go run ./cmd/camon serve
  go run ./cmd/camon serve --port 8089`,
	RunE: runServe,
}

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flags
	serveCmd.Flags().StringVar(&servePort, "port", "", "API 서버 포트")
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Camon Monitor ===")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if servePort != "" {
		cfg.Port = servePort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing monitor")

	// 3. Connect to Redis
	rdb, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()

	log.Info("Connected to Redis")

	// 4. Ranking engine
	engine := ranking.NewEngine(ranking.NewRedisStore(rdb), log, cfg.Ranking.WinThreshold)

	// 5. Optional snapshot archive
	var archiver *archive.Archiver
	if cfg.ArchiveEnabled() {
		db, err := database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		archiver = archive.New(db, log)
		if err := archiver.EnsureSchema(cmd.Context()); err != nil {
			return fmt.Errorf("prepare snapshot schema: %w", err)
		}
		log.Info("Snapshot archive enabled")
	} else {
		log.Info("No database configured, snapshots disabled")
	}

	// 6. Price feed. Poll failures are abandoned until the next cycle,
	// so the HTTP client must not retry on its own.
	httpClient := httputil.New(log).
		DisableRetry().
		WithHeader("X-API-KEY", cfg.Feed.APIKey)
	manager := feed.NewManager(cfg, log, httpClient, engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager.Start(ctx)
	defer manager.Stop()

	// 7. Daily reset scheduler in the configured timezone
	loc, err := time.LoadLocation(cfg.Ranking.ResetTimezone)
	if err != nil {
		return fmt.Errorf("load reset timezone: %w", err)
	}
	sched := scheduler.New(log, loc)
	if err := sched.AddJob(jobs.NewRankingReset(engine, archiver, cfg.Ranking.SnapshotLimit, log)); err != nil {
		return fmt.Errorf("schedule ranking reset: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// 8. HTTP API
	rankingHandler := handlers.NewRankingHandler(engine, log)
	feedHandler := handlers.NewFeedHandler(manager, log)
	jobsHandler := handlers.NewJobsHandler(sched, log)
	router := api.NewRouter(rankingHandler, feedHandler, jobsHandler, log)
	server := api.New(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("Monitor started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Monitor stopped")
	return nil
}
