// Package jobs holds the scheduled job implementations.
package jobs

import (
	"context"
	"time"

	"github.com/wonny/camon/backend/internal/archive"
	"github.com/wonny/camon/backend/internal/ranking"
	"github.com/wonny/camon/backend/pkg/logger"
)

// RankingReset wipes the day's leaderboards at midnight. When an
// archiver is configured the top entries are snapshotted to Postgres
// first; a failed snapshot is logged but never blocks the reset.
type RankingReset struct {
	engine   *ranking.Engine
	archiver *archive.Archiver // nil when no database is configured
	limit    int
	logger   *logger.Logger
}

func NewRankingReset(engine *ranking.Engine, archiver *archive.Archiver, limit int, log *logger.Logger) *RankingReset {
	return &RankingReset{
		engine:   engine,
		archiver: archiver,
		limit:    limit,
		logger:   log.WithField("job", "ranking-reset"),
	}
}

func (j *RankingReset) Name() string {
	return "ranking-reset"
}

// Schedule fires at midnight in the scheduler's timezone
func (j *RankingReset) Schedule() string {
	return "0 0 0 * * *"
}

func (j *RankingReset) Run(ctx context.Context) error {
	if j.archiver != nil {
		j.snapshot(ctx)
	}
	return j.engine.ResetDaily(ctx)
}

func (j *RankingReset) snapshot(ctx context.Context) {
	groups, err := j.engine.GroupRanking(ctx, j.limit)
	if err != nil {
		j.logger.WithError(err).Error("group snapshot read failed")
		return
	}
	calls, err := j.engine.CallRanking(ctx, j.limit)
	if err != nil {
		j.logger.WithError(err).Error("call snapshot read failed")
		return
	}
	// The snapshot belongs to the day just ended
	day := time.Now().Add(-time.Hour).Truncate(24 * time.Hour)
	if err := j.archiver.Snapshot(ctx, day, groups, calls); err != nil {
		j.logger.WithError(err).Error("leaderboard snapshot failed")
	}
}
