package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/crash-game-platform-poc/internal/game-service/fair"
	"github.com/radieske/crash-game-platform-poc/pkg/contracts/events"
)

// StartNewRound cria o próximo round: gera o par (hash, crashPoint),
// persiste o compromisso e abre a janela de apostas. Se a liquidação do
// round anterior ainda não terminou, re-agenda. Erros de persistência não
// derrubam o processo: o scheduler tenta de novo após o backoff.
func (e *Engine) StartNewRound(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	if e.settling {
		e.mu.Unlock()
		e.scheduleRestart(ctx)
		return
	}
	e.mu.Unlock()

	seed := fair.NewSeed()
	roundNumber := e.now().UnixMilli()
	hash, crashPoint := fair.Generate(seed, roundNumber)

	round := &Round{
		RoundID:     fmt.Sprintf("round_%d", roundNumber),
		RoundNumber: roundNumber,
		Seed:        seed,
		Hash:        hash,
		CrashPoint:  crashPoint,
		Status:      StatusWaiting,
		StartTime:   e.now(),
	}

	// o compromisso (hash + crash point) precisa estar durável antes de
	// qualquer broadcast; senão um restart poderia regenerar o resultado
	if err := e.store.CreateRound(ctx, round); err != nil {
		e.log.Error("create round failed, will retry", zap.Error(err))
		e.fireError("create_round")
		e.scheduleRestart(ctx)
		return
	}

	e.mu.Lock()
	e.current = round
	e.status = StatusWaiting
	e.startTime = time.Time{}
	e.multiplier = 1.0
	e.activeBets = make(map[string]*Bet)
	e.mu.Unlock()

	e.bcast.NewRound(ctx, events.NewRound{
		RoundID: round.RoundID,
		Hash:    round.Hash,
		Status:  string(StatusWaiting),
	})

	e.log.Info("new round",
		zap.String("roundId", round.RoundID),
		zap.Float64("crashPoint", round.CrashPoint),
	)

	// transição agendada carrega a identidade do round: callback de um
	// round superado vira no-op
	roundID := round.RoundID
	time.AfterFunc(e.cfg.BettingWindow, func() {
		e.startGame(ctx, roundID)
	})
}

func (e *Engine) scheduleRestart(ctx context.Context) {
	time.AfterFunc(e.cfg.RestartBackoff, func() {
		e.StartNewRound(ctx)
	})
}

// startGame fecha a janela de apostas e inicia a fase ativa do round
func (e *Engine) startGame(ctx context.Context, roundID string) {
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	if e.current == nil || e.current.RoundID != roundID || e.status != StatusWaiting {
		e.mu.Unlock()
		return // timer obsoleto
	}
	start := e.now()
	e.status = StatusActive
	e.startTime = start
	e.current.Status = StatusActive
	e.current.StartTime = start
	e.mu.Unlock()

	// persistência fora do lock; falha aqui não interrompe o round
	go func() {
		if err := e.store.SetRoundActive(ctx, roundID, start.UnixMilli()); err != nil {
			e.log.Warn("persist round active failed", zap.Error(err))
			e.fireError("round_active")
		}
	}()

	e.bcast.GameStarted(ctx, events.GameStarted{
		RoundID:   roundID,
		StartTime: start.UnixMilli(),
		Status:    string(StatusActive),
	})
	if e.OnRoundStarted != nil {
		e.OnRoundStarted()
	}

	e.log.Info("game started", zap.String("roundId", roundID))

	go e.runTicker(ctx, roundID)
}

// runTicker atualiza o multiplicador a cada tick até o round crashar ou
// ser superado. O loop sai sozinho em ambos os casos.
func (e *Engine) runTicker(ctx context.Context, roundID string) {
	t := time.NewTicker(e.cfg.TickInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if done := e.tick(ctx, roundID); done {
				return
			}
		}
	}
}

// tick decide crash-vs-broadcast sob o lock e faz os efeitos fora dele.
// Retorna true quando o ticker deve parar.
func (e *Engine) tick(ctx context.Context, roundID string) bool {
	e.mu.Lock()
	if e.current == nil || e.current.RoundID != roundID || e.status != StatusActive {
		e.mu.Unlock()
		return true // round superado
	}

	elapsed := e.now().Sub(e.startTime).Seconds()
	m := 1 + elapsed*e.cfg.GrowthRate

	if m >= e.current.CrashPoint {
		round := e.crashLocked()
		e.mu.Unlock()
		e.finishRound(ctx, round)
		return true
	}

	e.multiplier = m
	upd := events.MultiplierUpdate{
		Multiplier: round2(m),
		Elapsed:    elapsed,
		RoundID:    roundID,
	}
	e.mu.Unlock()

	e.bcast.MultiplierUpdate(ctx, upd)
	return false
}

// crashLocked faz a transição terminal do round com o lock já tomado:
// multiplicador cravado no crash point, apostas abertas marcadas como
// perdidas (o débito já aconteceu na aposta; não há movimento de saldo)
// e índice limpo. Depois disso nenhuma aposta do round muda.
func (e *Engine) crashLocked() *Round {
	round := e.current
	e.multiplier = round.CrashPoint
	e.status = StatusCrashed
	round.Status = StatusCrashed
	round.EndTime = e.now()

	for _, b := range e.activeBets {
		if !b.CashedOut {
			b.Lost = true
			b.LossAmount = b.USDAmount
		}
	}
	e.activeBets = make(map[string]*Bet)
	e.settling = true

	return round
}

// finishRound emite o crash, dispara a liquidação assíncrona e agenda o
// próximo round após o cooldown
func (e *Engine) finishRound(ctx context.Context, round *Round) {
	e.bcast.GameCrashed(ctx, events.GameCrashed{
		CrashPoint:      round.CrashPoint,
		RoundID:         round.RoundID,
		FinalMultiplier: round.CrashPoint,
	})
	if e.OnRoundCrashed != nil {
		e.OnRoundCrashed(round.CrashPoint)
	}

	e.log.Info("game crashed",
		zap.String("roundId", round.RoundID),
		zap.Float64("crashPoint", round.CrashPoint),
	)

	go e.settleRound(ctx, round)

	time.AfterFunc(e.cfg.Cooldown, func() {
		e.StartNewRound(ctx)
	})
}

// settleRound persiste o estado final do round com retry + backoff.
// Enquanto não concluir, settling segura a criação do próximo round e o
// round não aparece como terminal na superfície de verificação.
func (e *Engine) settleRound(ctx context.Context, round *Round) {
	backoff := 250 * time.Millisecond
	for {
		err := e.store.FinishRound(ctx, round)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		e.log.Warn("persist finished round failed, retrying",
			zap.String("roundId", round.RoundID), zap.Error(err))
		e.fireError("finish_round")
		time.Sleep(backoff)
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}

	e.mu.Lock()
	e.settling = false
	e.mu.Unlock()

	e.publishSettlement(ctx, round)
}

// publishSettlement envia round_settled e bet_settled para o stream Kafka
func (e *Engine) publishSettlement(ctx context.Context, round *Round) {
	if e.stream == nil {
		return
	}

	var wagered, paidOut float64
	var won, lost int
	for _, b := range round.Bets {
		wagered += b.USDAmount
		if b.CashedOut {
			won++
			if b.Payout != nil {
				paidOut += b.Payout.USD
			}
		} else {
			lost++
		}
	}

	ev := events.RoundSettled{
		RoundID:         round.RoundID,
		RoundNumber:     round.RoundNumber,
		CrashPoint:      round.CrashPoint,
		Hash:            round.Hash,
		StartTime:       round.StartTime,
		EndTime:         round.EndTime,
		TotalBets:       len(round.Bets),
		TotalWagered:    wagered,
		TotalPaidOut:    paidOut,
		PlayersWon:      won,
		PlayersLost:     lost,
		SettledAtUnixMs: e.now().UnixMilli(),
	}
	if err := e.stream.PublishRoundSettled(ctx, ev); err != nil {
		e.log.Warn("publish round_settled failed", zap.Error(err))
		e.fireError("publish_round_settled")
	}

	for _, b := range round.Bets {
		bev := events.BetSettled{
			RoundID:      round.RoundID,
			BetID:        b.ID,
			PlayerID:     b.PlayerID,
			USDAmount:    b.USDAmount,
			CryptoAmount: b.CryptoAmount,
			Currency:     b.Currency,
			CashedOut:    b.CashedOut,
			TsUnixMs:     e.now().UnixMilli(),
		}
		if b.CashedOut {
			bev.CashoutMultiplier = b.CashoutMultiplier
			if b.Payout != nil {
				bev.USDPayout = b.Payout.USD
			}
		}
		if err := e.stream.PublishBetSettled(ctx, bev); err != nil {
			e.log.Warn("publish bet_settled failed", zap.Error(err))
			e.fireError("publish_bet_settled")
		}
	}
}
