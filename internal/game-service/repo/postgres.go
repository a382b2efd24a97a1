package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/radieske/crash-game-platform-poc/internal/game-service/engine"
)

// Saldo USD inicial de jogadores recém criados
const StartingBalanceUSD = 1000.0

// Postgres implementa o Store do engine sobre Postgres.
// A unidade de trabalho de aposta/cashout vira uma transação com lock
// pessimista (FOR UPDATE) na linha do jogador.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// CreateRound grava o round completo (seed incluso) antes de qualquer
// broadcast. O seed só sai daqui pela leitura de rounds já crashados.
func (p *Postgres) CreateRound(ctx context.Context, r *engine.Round) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO game_rounds (round_id, round_number, seed, hash, crash_point, status, start_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		r.RoundID, r.RoundNumber, r.Seed, r.Hash, r.CrashPoint, string(r.Status), r.StartTime,
	)
	return err
}

func (p *Postgres) SetRoundActive(ctx context.Context, roundID string, startTimeUnixMs int64) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE game_rounds SET status='active', start_time=$2, updated_at=NOW() WHERE round_id=$1`,
		roundID, time.UnixMilli(startTimeUnixMs),
	)
	return err
}

// FinishRound grava o estado terminal do round e a marcação administrativa
// das apostas perdidas, numa transação única
func (p *Postgres) FinishRound(ctx context.Context, r *engine.Round) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`UPDATE game_rounds SET status=$2, end_time=$3, updated_at=NOW() WHERE round_id=$1`,
		r.RoundID, string(r.Status), r.EndTime,
	); err != nil {
		return err
	}

	for _, b := range r.Bets {
		if b.Lost {
			if _, err = tx.ExecContext(ctx,
				`UPDATE bets SET lost=TRUE, loss_amount=$2, updated_at=NOW() WHERE id=$1`,
				b.ID, b.LossAmount,
			); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (p *Postgres) Begin(ctx context.Context) (engine.Tx, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct{ tx *sql.Tx }

// GetOrCreatePlayer retorna o jogador com lock pessimista na linha,
// criando a conta com o saldo inicial quando não existe
func (t *pgTx) GetOrCreatePlayer(ctx context.Context, playerID string) (*engine.Player, error) {
	pl := &engine.Player{PlayerID: playerID, Wallets: map[string]float64{}}

	err := t.tx.QueryRowContext(ctx,
		`SELECT name, usd_balance FROM players WHERE player_id=$1 FOR UPDATE`,
		playerID).Scan(&pl.Name, &pl.USDBalance)
	if err == sql.ErrNoRows {
		pl.Name = playerID
		pl.USDBalance = StartingBalanceUSD
		if _, err = t.tx.ExecContext(ctx,
			`INSERT INTO players (player_id, name, usd_balance) VALUES ($1,$2,$3)`,
			playerID, pl.Name, pl.USDBalance,
		); err != nil {
			return nil, err
		}
		for _, cur := range []string{"BTC", "ETH"} {
			if _, err = t.tx.ExecContext(ctx,
				`INSERT INTO player_wallets (player_id, currency, balance) VALUES ($1,$2,0)`,
				playerID, cur,
			); err != nil {
				return nil, err
			}
			pl.Wallets[cur] = 0
		}
		return pl, nil
	} else if err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(ctx,
		`SELECT currency, balance FROM player_wallets WHERE player_id=$1 FOR UPDATE`, playerID)
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

func (t *pgTx) DebitUSD(ctx context.Context, playerID string, amount float64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE players SET usd_balance = usd_balance - $2, updated_at=NOW()
		 WHERE player_id=$1 AND usd_balance >= $2`,
		playerID, amount,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrInsufficientFunds
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger (player_id, operation_type, currency, amount) VALUES ($1,'DEBIT','USD',$2)`,
		playerID, amount,
	)
	return err
}

func (t *pgTx) CreditUSD(ctx context.Context, playerID string, amount float64) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE players SET usd_balance = usd_balance + $2, updated_at=NOW() WHERE player_id=$1`,
		playerID, amount,
	); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger (player_id, operation_type, currency, amount) VALUES ($1,'CREDIT','USD',$2)`,
		playerID, amount,
	)
	return err
}

func (t *pgTx) CreditWallet(ctx context.Context, playerID, currency string, amount float64) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO player_wallets (player_id, currency, balance) VALUES ($1,$2,$3)
		ON CONFLICT (player_id, currency) DO UPDATE SET balance = player_wallets.balance + EXCLUDED.balance`,
		playerID, currency, amount,
	); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger (player_id, operation_type, currency, amount) VALUES ($1,'CREDIT',$2,$3)`,
		playerID, currency, amount,
	)
	return err
}

func (t *pgTx) InsertBet(ctx context.Context, roundID string, b *engine.Bet) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO bets (id, round_id, player_id, player_name, usd_amount, crypto_amount, currency, price_at_time, placed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		b.ID, roundID, b.PlayerID, b.PlayerName, b.USDAmount, b.CryptoAmount, b.Currency, b.PriceAtTime, b.PlacedAt,
	)
	return err
}

func (t *pgTx) UpdateBetCashout(ctx context.Context, roundID string, b *engine.Bet) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE bets SET cashed_out=TRUE, cashout_multiplier=$2, payout_crypto=$3, payout_usd=$4, updated_at=NOW()
		WHERE id=$1 AND round_id=$5 AND cashed_out=FALSE`,
		b.ID, b.CashoutMultiplier, b.Payout.Crypto, b.Payout.USD, roundID,
	)
	return err
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn *engine.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, player_id, round_id, usd_amount, crypto_amount, currency, transaction_type, transaction_hash, price_at_time, multiplier, created_at)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11)`,
		txn.ID, txn.PlayerID, txn.RoundID, txn.USDAmount, txn.CryptoAmount, txn.Currency,
		txn.Type, txn.Hash, txn.PriceAtTime, txn.Multiplier, txn.CreatedAt,
	)
	return err
}

func (t *pgTx) Commit() error   { return t.tx.Commit() }
func (t *pgTx) Rollback() error { return t.tx.Rollback() }
