// Package archive persists end-of-day leaderboard snapshots to
// Postgres before the daily reset wipes them from Redis.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/camon/backend/internal/ranking"
	"github.com/wonny/camon/backend/pkg/database"
	"github.com/wonny/camon/backend/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS ranking_group_snapshots (
    id               BIGSERIAL PRIMARY KEY,
    snapshot_date    DATE NOT NULL,
    rank             INT NOT NULL,
    group_id         TEXT NOT NULL,
    group_name       TEXT NOT NULL DEFAULT '',
    win_rate         DOUBLE PRECISION NOT NULL,
    total_calls      BIGINT NOT NULL,
    unique_contracts BIGINT NOT NULL,
    wins             BIGINT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (snapshot_date, group_id)
);

CREATE TABLE IF NOT EXISTS ranking_call_snapshots (
    id                 BIGSERIAL PRIMARY KEY,
    snapshot_date      DATE NOT NULL,
    rank               INT NOT NULL,
    call_id            TEXT NOT NULL,
    address            TEXT NOT NULL,
    token_symbol       TEXT NOT NULL DEFAULT '',
    user_id            TEXT NOT NULL,
    user_nick          TEXT NOT NULL DEFAULT '',
    group_id           TEXT NOT NULL DEFAULT '',
    max_multiplier     DOUBLE PRECISION NOT NULL,
    current_multiplier DOUBLE PRECISION NOT NULL,
    call_time_ms       BIGINT NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (snapshot_date, call_id)
);
`

// Archiver writes daily leaderboard snapshots. It is optional: when no
// database is configured the reset job simply runs without one.
type Archiver struct {
	db     *database.DB
	logger *logger.Logger
}

func New(db *database.DB, log *logger.Logger) *Archiver {
	return &Archiver{db: db, logger: log.WithField("component", "archiver")}
}

// EnsureSchema creates the snapshot tables if they do not exist
func (a *Archiver) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create snapshot tables: %w", err)
	}
	return nil
}

// Snapshot stores both leaderboards for the given day. Conflicting
// rows are overwritten so a rerun of the reset job is harmless.
func (a *Archiver) Snapshot(ctx context.Context, day time.Time, groups []ranking.GroupRankingEntry, calls []ranking.CallRankingEntry) error {
	batch := &pgx.Batch{}
	date := day.Format("2006-01-02")

	for _, g := range groups {
		batch.Queue(`
			INSERT INTO ranking_group_snapshots
				(snapshot_date, rank, group_id, group_name, win_rate, total_calls, unique_contracts, wins)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (snapshot_date, group_id) DO UPDATE SET
				rank = EXCLUDED.rank,
				group_name = EXCLUDED.group_name,
				win_rate = EXCLUDED.win_rate,
				total_calls = EXCLUDED.total_calls,
				unique_contracts = EXCLUDED.unique_contracts,
				wins = EXCLUDED.wins`,
			date, g.Rank, g.GroupID, g.GroupName, g.WinRate, g.TotalCalls, g.UniqueContracts, g.Wins)
	}
	for _, c := range calls {
		batch.Queue(`
			INSERT INTO ranking_call_snapshots
				(snapshot_date, rank, call_id, address, token_symbol, user_id, user_nick, group_id, max_multiplier, current_multiplier, call_time_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (snapshot_date, call_id) DO UPDATE SET
				rank = EXCLUDED.rank,
				max_multiplier = EXCLUDED.max_multiplier,
				current_multiplier = EXCLUDED.current_multiplier`,
			date, c.Rank, c.CallID, c.Address, c.TokenSymbol, c.UserID, c.UserNick, c.GroupID, c.MaxMultiplier, c.CurrentMultiplier, c.CallTimeMs)
	}

	if batch.Len() == 0 {
		return nil
	}
	results := a.db.Pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("snapshot insert %d: %w", i, err)
		}
	}

	a.logger.WithFields(map[string]interface{}{
		"date":   date,
		"groups": len(groups),
		"calls":  len(calls),
	}).Info("leaderboard snapshot stored")
	return nil
}
