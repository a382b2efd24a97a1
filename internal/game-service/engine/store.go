package engine

import (
	"context"
	"errors"
)

// Erros de validação/conflito retornados pelas operações do ledger.
// Nenhum deles deixa mutação parcial para trás.
var (
	ErrNoActiveRound     = errors.New("no active round")
	ErrBettingClosed     = errors.New("betting is not allowed at this time")
	ErrCashoutClosed     = errors.New("cannot cash out at this time")
	ErrRoundCrashed      = errors.New("round already crashed")
	ErrBetExists         = errors.New("player already has a bet this round")
	ErrInvalidAmount     = errors.New("invalid bet amount")
	ErrInvalidCurrency   = errors.New("unsupported currency")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrNoActiveBet       = errors.New("no active bet found")
	ErrAlreadyCashedOut  = errors.New("already cashed out")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrRoundNotFound     = errors.New("round not found")
)

// Store é o gateway de persistência do engine (Postgres em produção,
// memstore nos testes). As operações de round são chamadas pelo scheduler;
// Begin abre a unidade de trabalho usada por aposta/cashout/depósito.
type Store interface {
	// CreateRound grava o round com seed, hash e crash point ANTES de
	// qualquer broadcast: o compromisso precisa estar durável primeiro.
	CreateRound(ctx context.Context, r *Round) error
	SetRoundActive(ctx context.Context, roundID string, startTimeUnixMs int64) error
	// FinishRound grava o crash e o estado final das apostas do round.
	// Enquanto não concluir, o round não é visível como terminal para
	// quem consulta a superfície de verificação.
	FinishRound(ctx context.Context, r *Round) error

	Begin(ctx context.Context) (Tx, error)
}

// Tx é a unidade de trabalho transacional: ou todos os passos de uma
// aposta/cashout entram, ou nenhum entra.
type Tx interface {
	// GetOrCreatePlayer cria o jogador com o saldo inicial quando não existe
	GetOrCreatePlayer(ctx context.Context, playerID string) (*Player, error)
	DebitUSD(ctx context.Context, playerID string, amount float64) error
	CreditUSD(ctx context.Context, playerID string, amount float64) error
	CreditWallet(ctx context.Context, playerID, currency string, amount float64) error
	InsertBet(ctx context.Context, roundID string, b *Bet) error
	UpdateBetCashout(ctx context.Context, roundID string, b *Bet) error
	InsertTransaction(ctx context.Context, t *Transaction) error

	Commit() error
	Rollback() error
}
