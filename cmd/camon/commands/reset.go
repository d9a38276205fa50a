package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/camon/backend/internal/ranking"
	"github.com/wonny/camon/backend/pkg/config"
	"github.com/wonny/camon/backend/pkg/logger"
	"github.com/wonny/camon/backend/pkg/redis"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "랭킹 데이터 수동 리셋",
	Long: `모든 랭킹 키를 즉시 삭제합니다.

스케줄된 자정 리셋과 동일한 동작이며, 스냅샷은 생성하지 않습니다.

Example:
  go run ./cmd/camon reset`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	rdb, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()

	engine := ranking.NewEngine(ranking.NewRedisStore(rdb), log, cfg.Ranking.WinThreshold)
	if err := engine.ResetDaily(context.Background()); err != nil {
		return fmt.Errorf("reset ranking: %w", err)
	}

	fmt.Println("✅ Ranking data reset")
	return nil
}
