package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/radieske/crash-game-platform-poc/pkg/contracts/events"
)

// PostgresRepo persiste as estatísticas agregadas por round na tabela
// round_stats. O upsert por round_id torna o consumo idempotente:
// reentrega do Kafka só regrava a mesma linha.
type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

// UpsertRoundStats insere ou atualiza as estatísticas de um round liquidado
func (r *PostgresRepo) UpsertRoundStats(ctx context.Context, e events.RoundSettled) error {
	const q = `
		INSERT INTO round_stats
		  (round_id, round_number, crash_point, hash, start_time, end_time,
		   total_bets, total_wagered_usd, total_paid_out_usd, players_won, players_lost, settled_at)
		VALUES
		  ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (round_id) DO UPDATE SET
		  crash_point        = EXCLUDED.crash_point,
		  hash               = EXCLUDED.hash,
		  start_time         = EXCLUDED.start_time,
		  end_time           = EXCLUDED.end_time,
		  total_bets         = EXCLUDED.total_bets,
		  total_wagered_usd  = EXCLUDED.total_wagered_usd,
		  total_paid_out_usd = EXCLUDED.total_paid_out_usd,
		  players_won        = EXCLUDED.players_won,
		  players_lost       = EXCLUDED.players_lost,
		  settled_at         = EXCLUDED.settled_at
	`
	_, err := r.DB.ExecContext(ctx, q,
		e.RoundID, e.RoundNumber, e.CrashPoint, e.Hash, e.StartTime, e.EndTime,
		e.TotalBets, e.TotalWagered, e.TotalPaidOut, e.PlayersWon, e.PlayersLost,
		time.UnixMilli(e.SettledAtUnixMs),
	)
	return err
}
