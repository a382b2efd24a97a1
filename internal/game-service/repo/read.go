package repo

import (
	"context"
	"database/sql"

	"github.com/radieske/crash-game-platform-poc/internal/game-service/engine"
)

// Consultas de leitura da API (histórico, detalhe de round, carteira,
// transações). O seed de um round só é exposto depois do crash estar
// durável — o commit-then-reveal depende disso.

func (p *Postgres) GetRound(ctx context.Context, roundID string) (*engine.Round, error) {
	r := &engine.Round{}
	var status string
	var seed sql.NullString
	var endTime sql.NullTime

	err := p.db.QueryRowContext(ctx, `
		SELECT round_id, round_number,
		       CASE WHEN status IN ('crashed','completed') THEN seed ELSE NULL END,
		       hash, crash_point, status, start_time, end_time
		FROM game_rounds WHERE round_id=$1`,
		roundID,
	).Scan(&r.RoundID, &r.RoundNumber, &seed, &r.Hash, &r.CrashPoint, &status, &r.StartTime, &endTime)
	if err == sql.ErrNoRows {
		return nil, engine.ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Status = engine.Status(status)
	r.Seed = seed.String
	if endTime.Valid {
		r.EndTime = endTime.Time
	}

	bets, err := p.betsByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	r.Bets = bets
	return r, nil
}

func (p *Postgres) betsByRound(ctx context.Context, roundID string) ([]*engine.Bet, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, player_id, player_name, usd_amount, crypto_amount, currency, price_at_time,
		       cashed_out, COALESCE(cashout_multiplier,0), COALESCE(payout_crypto,0), COALESCE(payout_usd,0),
		       lost, COALESCE(loss_amount,0), placed_at
		FROM bets WHERE round_id=$1 ORDER BY placed_at`,
		roundID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*engine.Bet
	for rows.Next() {
		b := &engine.Bet{}
		var payoutCrypto, payoutUSD float64
		if err := rows.Scan(
			&b.ID, &b.PlayerID, &b.PlayerName, &b.USDAmount, &b.CryptoAmount, &b.Currency, &b.PriceAtTime,
			&b.CashedOut, &b.CashoutMultiplier, &payoutCrypto, &payoutUSD,
			&b.Lost, &b.LossAmount, &b.PlacedAt,
		); err != nil {
			return nil, err
		}
		if b.CashedOut {
			b.Payout = &engine.Payout{Crypto: payoutCrypto, USD: payoutUSD}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) ListCrashedRounds(ctx context.Context, limit, offset int) ([]*engine.Round, int, error) {
	var total int
	if err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM game_rounds WHERE status IN ('crashed','completed')`,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT round_id, round_number, hash, crash_point, status, start_time, end_time
		FROM game_rounds
		WHERE status IN ('crashed','completed')
		ORDER BY round_number DESC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*engine.Round
	for rows.Next() {
		r := &engine.Round{}
		var status string
		var endTime sql.NullTime
		if err := rows.Scan(&r.RoundID, &r.RoundNumber, &r.Hash, &r.CrashPoint, &status, &r.StartTime, &endTime); err != nil {
			return nil, 0, err
		}
		r.Status = engine.Status(status)
		if endTime.Valid {
			r.EndTime = endTime.Time
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, r := range out {
		bets, err := p.betsByRound(ctx, r.RoundID)
		if err != nil {
			return nil, 0, err
		}
		r.Bets = bets
	}
	return out, total, nil
}

func (p *Postgres) GetPlayer(ctx context.Context, playerID string) (*engine.Player, error) {
	pl := &engine.Player{PlayerID: playerID, Wallets: map[string]float64{}}
	err := p.db.QueryRowContext(ctx,
		`SELECT name, usd_balance FROM players WHERE player_id=$1`,
		playerID).Scan(&pl.Name, &pl.USDBalance)
	if err == sql.ErrNoRows {
		return nil, engine.ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT currency, balance FROM player_wallets WHERE player_id=$1`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var cur string
		var bal float64
		if err := rows.Scan(&cur, &bal); err != nil {
			return nil, err
		}
		pl.Wallets[cur] = bal
	}
	return pl, rows.Err()
}

func (p *Postgres) ListTransactions(ctx context.Context, playerID, txType string, limit, offset int) ([]*engine.Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, player_id, COALESCE(round_id,''), usd_amount, crypto_amount, currency,
		       transaction_type, transaction_hash, price_at_time, COALESCE(multiplier,0), created_at
		FROM transactions
		WHERE player_id=$1 AND ($2 = '' OR transaction_type=$2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		playerID, txType, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (p *Postgres) TransactionsByRound(ctx context.Context, roundID string) ([]*engine.Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, player_id, COALESCE(round_id,''), usd_amount, crypto_amount, currency,
		       transaction_type, transaction_hash, price_at_time, COALESCE(multiplier,0), created_at
		FROM transactions
		WHERE round_id=$1
		ORDER BY created_at`,
		roundID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]*engine.Transaction, error) {
	var out []*engine.Transaction
	for rows.Next() {
		t := &engine.Transaction{}
		if err := rows.Scan(
			&t.ID, &t.PlayerID, &t.RoundID, &t.USDAmount, &t.CryptoAmount, &t.Currency,
			&t.Type, &t.Hash, &t.PriceAtTime, &t.Multiplier, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
