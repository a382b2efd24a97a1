package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/crash-game-platform-poc/pkg/contracts/events"
)

func validCurrency(c string) bool {
	return c == "BTC" || c == "ETH"
}

// PlaceBet aceita uma aposta durante a janela de apostas. Efeito atômico:
// débito USD, crédito cripto, registro da aposta e da transação entram
// juntos ou nenhum entra. O preço é congelado aqui (PriceAtTime) e vale
// para todo o cálculo de payout do round.
func (e *Engine) PlaceBet(ctx context.Context, playerID string, usdAmount float64, currency string) (*Bet, string, error) {
	currency = strings.ToUpper(currency)
	if usdAmount < MinBetUSD || usdAmount > MaxBetUSD {
		return nil, "", ErrInvalidAmount
	}
	if !validCurrency(currency) {
		return nil, "", ErrInvalidCurrency
	}

	// pré-checagem de fase antes de buscar preço, pra falhar barato
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return nil, "", ErrNoActiveRound
	}
	if e.status != StatusWaiting {
		e.mu.Unlock()
		return nil, "", ErrBettingClosed
	}
	if _, ok := e.activeBets[playerID]; ok {
		e.mu.Unlock()
		return nil, "", ErrBetExists
	}
	roundID := e.current.RoundID
	e.mu.Unlock()

	// consulta ao oráculo fora do lock; latência limitada pelo client HTTP
	price, err := e.oracle.GetPrice(ctx, currency)
	if err != nil {
		e.fireError("price_feed")
		return nil, "", fmt.Errorf("price feed: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// revalida: o round pode ter virado enquanto o preço era buscado
	if e.current == nil || e.current.RoundID != roundID || e.status != StatusWaiting {
		return nil, "", ErrBettingClosed
	}
	if _, ok := e.activeBets[playerID]; ok {
		return nil, "", ErrBetExists
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		e.fireError("store_begin")
		return nil, "", err
	}
	defer func() { _ = tx.Rollback() }()

	player, err := tx.GetOrCreatePlayer(ctx, playerID)
	if err != nil {
		return nil, "", err
	}
	if player.USDBalance < usdAmount {
		return nil, "", ErrInsufficientFunds
	}

	cryptoAmount := usdAmount / price
	bet := &Bet{
		ID:           uuid.NewString(),
		PlayerID:     playerID,
		PlayerName:   player.Name,
		USDAmount:    usdAmount,
		CryptoAmount: cryptoAmount,
		Currency:     currency,
		PriceAtTime:  price,
		PlacedAt:     e.now(),
	}

	if err := tx.DebitUSD(ctx, playerID, usdAmount); err != nil {
		return nil, "", err
	}
	if err := tx.CreditWallet(ctx, playerID, currency, cryptoAmount); err != nil {
		return nil, "", err
	}
	if err := tx.InsertBet(ctx, roundID, bet); err != nil {
		return nil, "", err
	}

	txn := &Transaction{
		ID:           uuid.NewString(),
		PlayerID:     playerID,
		RoundID:      roundID,
		USDAmount:    usdAmount,
		CryptoAmount: cryptoAmount,
		Currency:     currency,
		Type:         TxBet,
		Hash:         NewTransactionHash(),
		PriceAtTime:  price,
		CreatedAt:    e.now(),
	}
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		e.fireError("store_commit")
		return nil, "", err
	}

	// só depois do commit o bet entra no índice e no round corrente
	e.activeBets[playerID] = bet
	e.current.Bets = append(e.current.Bets, bet)

	e.bcast.NewBet(ctx, events.NewBet{
		PlayerID:     playerID,
		PlayerName:   bet.PlayerName,
		USDAmount:    usdAmount,
		Currency:     currency,
		CryptoAmount: cryptoAmount,
		RoundID:      roundID,
	})
	if e.OnBetPlaced != nil {
		e.OnBetPlaced()
	}

	e.log.Info("bet placed",
		zap.String("playerId", playerID),
		zap.Float64("usdAmount", usdAmount),
		zap.String("currency", currency),
	)

	return bet, txn.Hash, nil
}

// CashOut liquida a aposta do jogador no multiplicador corrente do
// scheduler. Serializado com o crash pelo mesmo lock: ou commita inteiro
// antes do crash, ou é rejeitado com "round already crashed" — crédito
// parcial nunca é observável.
func (e *Engine) CashOut(ctx context.Context, playerID string) (float64, Payout, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusCrashed {
		return 0, Payout{}, "", ErrRoundCrashed
	}
	if e.current == nil || e.status != StatusActive {
		return 0, Payout{}, "", ErrCashoutClosed
	}

	bet, ok := e.activeBets[playerID]
	if !ok {
		return 0, Payout{}, "", ErrNoActiveBet
	}
	if bet.CashedOut {
		return 0, Payout{}, "", ErrAlreadyCashedOut
	}

	// multiplicador vivo mantido pelo tick; a conversão de volta pra USD
	// usa o preço congelado na aposta, não o preço corrente
	m := round2(e.multiplier)
	cryptoPayout := bet.CryptoAmount * m
	usdPayout := cryptoPayout * bet.PriceAtTime

	tx, err := e.store.Begin(ctx)
	if err != nil {
		e.fireError("store_begin")
		return 0, Payout{}, "", err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.CreditUSD(ctx, playerID, usdPayout); err != nil {
		return 0, Payout{}, "", err
	}
	// o principal já foi creditado na carteira na hora da aposta;
	// aqui entra só o lucro
	if err := tx.CreditWallet(ctx, playerID, bet.Currency, cryptoPayout-bet.CryptoAmount); err != nil {
		return 0, Payout{}, "", err
	}

	settled := *bet
	settled.CashedOut = true
	settled.CashoutMultiplier = m
	settled.Payout = &Payout{Crypto: cryptoPayout, USD: usdPayout}
	if err := tx.UpdateBetCashout(ctx, e.current.RoundID, &settled); err != nil {
		return 0, Payout{}, "", err
	}

	txn := &Transaction{
		ID:           uuid.NewString(),
		PlayerID:     playerID,
		RoundID:      e.current.RoundID,
		USDAmount:    usdPayout,
		CryptoAmount: cryptoPayout,
		Currency:     bet.Currency,
		Type:         TxCashout,
		Hash:         NewTransactionHash(),
		PriceAtTime:  bet.PriceAtTime,
		Multiplier:   m,
		CreatedAt:    e.now(),
	}
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return 0, Payout{}, "", err
	}

	if err := tx.Commit(); err != nil {
		e.fireError("store_commit")
		return 0, Payout{}, "", err
	}

	// mutações em memória só depois do commit
	bet.CashedOut = true
	bet.CashoutMultiplier = m
	bet.Payout = &Payout{Crypto: cryptoPayout, USD: usdPayout}
	delete(e.activeBets, playerID)

	e.bcast.PlayerCashedOut(ctx, events.PlayerCashedOut{
		PlayerID:     playerID,
		PlayerName:   bet.PlayerName,
		Multiplier:   m,
		CryptoPayout: cryptoPayout,
		USDPayout:    usdPayout,
		Currency:     bet.Currency,
		RoundID:      e.current.RoundID,
	})
	if e.OnCashout != nil {
		e.OnCashout()
	}

	e.log.Info("cashout",
		zap.String("playerId", playerID),
		zap.Float64("multiplier", m),
		zap.Float64("usdPayout", usdPayout),
	)

	return m, Payout{Crypto: cryptoPayout, USD: usdPayout}, txn.Hash, nil
}

// Deposit credita saldo USD na conta do jogador e registra a transação
func (e *Engine) Deposit(ctx context.Context, playerID string, amount float64) (float64, string, error) {
	if amount < 0.01 || amount > 100000 {
		return 0, "", ErrInvalidAmount
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = tx.Rollback() }()

	player, err := tx.GetOrCreatePlayer(ctx, playerID)
	if err != nil {
		return 0, "", err
	}
	if err := tx.CreditUSD(ctx, playerID, amount); err != nil {
		return 0, "", err
	}

	txn := &Transaction{
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		USDAmount: amount,
		Currency:  "USD",
		Type:      TxDeposit,
		Hash:      NewTransactionHash(),
		CreatedAt: e.now(),
	}
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return 0, "", err
	}
	if err := tx.Commit(); err != nil {
		return 0, "", err
	}

	return player.USDBalance + amount, txn.Hash, nil
}
