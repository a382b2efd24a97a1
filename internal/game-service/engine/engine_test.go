package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/crash-game-platform-poc/internal/shared/config"
	"github.com/radieske/crash-game-platform-poc/pkg/contracts/events"
)

// ---- dublês ----

type fixedOracle struct{ price float64 }

func (o fixedOracle) GetPrice(_ context.Context, _ string) (float64, error) {
	return o.price, nil
}

// recorder captura os broadcasts emitidos pelo engine
type recorder struct {
	mu        sync.Mutex
	newRounds []events.NewRound
	started   []events.GameStarted
	updates   []events.MultiplierUpdate
	crashes   []events.GameCrashed
	bets      []events.NewBet
	cashouts  []events.PlayerCashedOut
}

func (r *recorder) NewRound(_ context.Context, ev events.NewRound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.newRounds = append(r.newRounds, ev)
}
func (r *recorder) GameStarted(_ context.Context, ev events.GameStarted) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, ev)
}
func (r *recorder) MultiplierUpdate(_ context.Context, ev events.MultiplierUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, ev)
}
func (r *recorder) GameCrashed(_ context.Context, ev events.GameCrashed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crashes = append(r.crashes, ev)
}
func (r *recorder) NewBet(_ context.Context, ev events.NewBet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bets = append(r.bets, ev)
}
func (r *recorder) PlayerCashedOut(_ context.Context, ev events.PlayerCashedOut) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cashouts = append(r.cashouts, ev)
}

// fakeStore implementa Store com a mesma disciplina transacional do
// repositório real: Begin segura o lock, mutações ficam staged e só
// entram no Commit
type fakeStore struct {
	mu      sync.Mutex
	players map[string]*Player
	rounds  map[string]*Round
	bets    map[string][]*Bet
	txns    []*Transaction

	failInsertTxn bool
	finishErrs    int // FinishRound falha as primeiras N chamadas
	finishCalls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		players: make(map[string]*Player),
		rounds:  make(map[string]*Round),
		bets:    make(map[string][]*Bet),
	}
}

func (s *fakeStore) CreateRound(_ context.Context, r *Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rounds[r.RoundID] = &cp
	return nil
}

func (s *fakeStore) SetRoundActive(_ context.Context, roundID string, startTimeUnixMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rounds[roundID]; ok {
		r.Status = StatusActive
		r.StartTime = time.UnixMilli(startTimeUnixMs)
	}
	return nil
}

func (s *fakeStore) FinishRound(_ context.Context, r *Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishCalls++
	if s.finishErrs > 0 {
		s.finishErrs--
		return errors.New("db down")
	}
	cp := *r
	s.rounds[r.RoundID] = &cp
	return nil
}

func (s *fakeStore) Begin(_ context.Context) (Tx, error) {
	s.mu.Lock()
	return &fakeTx{s: s, players: make(map[string]*Player)}, nil
}

func (s *fakeStore) playerSnapshot(playerID string) *Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return nil
	}
	cp := *p
	cp.Wallets = make(map[string]float64, len(p.Wallets))
	for k, v := range p.Wallets {
		cp.Wallets[k] = v
	}
	return &cp
}

type stagedBet struct {
	roundID string
	bet     *Bet
}

type fakeTx struct {
	s    *fakeStore
	done bool

	players map[string]*Player
	bets    []stagedBet
	txns    []*Transaction
}

func (t *fakeTx) player(playerID string) *Player {
	if p, ok := t.players[playerID]; ok {
		return p
	}
	if p, ok := t.s.players[playerID]; ok {
		cp := *p
		cp.Wallets = make(map[string]float64, len(p.Wallets))
		for k, v := range p.Wallets {
			cp.Wallets[k] = v
		}
		t.players[playerID] = &cp
		return &cp
	}
	return nil
}

func (t *fakeTx) GetOrCreatePlayer(_ context.Context, playerID string) (*Player, error) {
	if p := t.player(playerID); p != nil {
		cp := *p
		return &cp, nil
	}
	p := &Player{
		PlayerID:   playerID,
		Name:       playerID,
		USDBalance: 1000,
		Wallets:    map[string]float64{"BTC": 0, "ETH": 0},
	}
	t.players[playerID] = p
	cp := *p
	return &cp, nil
}

func (t *fakeTx) DebitUSD(_ context.Context, playerID string, amount float64) error {
	p := t.player(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}
	if p.USDBalance < amount {
		return ErrInsufficientFunds
	}
	p.USDBalance -= amount
	return nil
}

func (t *fakeTx) CreditUSD(_ context.Context, playerID string, amount float64) error {
	p := t.player(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}
	p.USDBalance += amount
	return nil
}

func (t *fakeTx) CreditWallet(_ context.Context, playerID, currency string, amount float64) error {
	p := t.player(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}
	p.Wallets[currency] += amount
	return nil
}

func (t *fakeTx) InsertBet(_ context.Context, roundID string, b *Bet) error {
	cp := *b
	t.bets = append(t.bets, stagedBet{roundID: roundID, bet: &cp})
	return nil
}

func (t *fakeTx) UpdateBetCashout(_ context.Context, roundID string, b *Bet) error {
	cp := *b
	t.bets = append(t.bets, stagedBet{roundID: roundID, bet: &cp})
	return nil
}

func (t *fakeTx) InsertTransaction(_ context.Context, txn *Transaction) error {
	if t.s.failInsertTxn {
		return errors.New("insert transaction failed")
	}
	cp := *txn
	t.txns = append(t.txns, &cp)
	return nil
}

func (t *fakeTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	for id, p := range t.players {
		t.s.players[id] = p
	}
	for _, sb := range t.bets {
		t.s.bets[sb.roundID] = append(t.s.bets[sb.roundID], sb.bet)
	}
	t.s.txns = append(t.s.txns, t.txns...)
	t.s.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

// ---- helpers ----

// janelas de uma hora: nenhuma transição dispara sozinha durante o teste,
// as fases são dirigidas manualmente
func newTestEngine(st Store) (*Engine, *recorder) {
	rec := &recorder{}
	cfg := config.GameConfig{
		BettingWindow:  time.Hour,
		Cooldown:       time.Hour,
		TickInterval:   time.Hour,
		GrowthRate:     0.1,
		RestartBackoff: time.Hour,
	}
	e := New(zap.NewNop(), st, fixedOracle{price: 50000}, rec, nil, cfg)
	return e, rec
}

func (e *Engine) forceActive(multiplier float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = StatusActive
	e.current.Status = StatusActive
	e.startTime = e.now()
	e.multiplier = multiplier
}

// ---- testes ----

func TestPlaceBetDuringBettingWindow(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	e, rec := newTestEngine(st)
	e.StartNewRound(ctx)

	bet, txHash, err := e.PlaceBet(ctx, "p1", 100, "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 0.002, bet.CryptoAmount, 1e-12) // 100 / 50000
	assert.Equal(t, 50000.0, bet.PriceAtTime)
	assert.True(t, strings.HasPrefix(txHash, "0x"))
	assert.Len(t, txHash, 66)

	p := st.playerSnapshot("p1")
	require.NotNil(t, p)
	assert.Equal(t, 900.0, p.USDBalance)
	assert.InDelta(t, 0.002, p.Wallets["BTC"], 1e-12)

	// uma aposta ativa por jogador por round
	_, _, err = e.PlaceBet(ctx, "p1", 50, "ETH")
	assert.ErrorIs(t, err, ErrBetExists)

	assert.Len(t, rec.bets, 1)
	assert.Equal(t, "p1", rec.bets[0].PlayerID)
}

func TestPlaceBetValidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(newFakeStore())
	e.StartNewRound(ctx)

	_, _, err := e.PlaceBet(ctx, "p1", 0.5, "BTC")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, _, err = e.PlaceBet(ctx, "p1", 10001, "BTC")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, _, err = e.PlaceBet(ctx, "p1", 100, "DOGE")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestPlaceBetRejectedOutsideWindow(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(newFakeStore())

	// sem round nenhum
	_, _, err := e.PlaceBet(ctx, "p1", 100, "BTC")
	assert.ErrorIs(t, err, ErrNoActiveRound)

	e.StartNewRound(ctx)
	e.startGame(ctx, e.current.RoundID)

	_, _, err = e.PlaceBet(ctx, "p1", 100, "BTC")
	assert.ErrorIs(t, err, ErrBettingClosed)
}

func TestCashoutUsesFrozenPrice(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	e, rec := newTestEngine(st)
	e.StartNewRound(ctx)

	_, _, err := e.PlaceBet(ctx, "p1", 100, "BTC")
	require.NoError(t, err)

	e.forceActive(1.5)

	m, payout, txHash, err := e.CashOut(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1.5, m)
	assert.InDelta(t, 0.003, payout.Crypto, 1e-12) // 0.002 * 1.5
	assert.InDelta(t, 150.0, payout.USD, 1e-9)     // 0.003 * 50000
	assert.NotEmpty(t, txHash)

	p := st.playerSnapshot("p1")
	assert.InDelta(t, 1050.0, p.USDBalance, 1e-9) // 900 + 150
	// principal creditado na aposta + só o lucro no cashout
	assert.InDelta(t, 0.003, p.Wallets["BTC"], 1e-12)

	// segunda tentativa: a aposta já saiu do índice
	_, _, _, err = e.CashOut(ctx, "p1")
	assert.ErrorIs(t, err, ErrNoActiveBet)

	require.Len(t, rec.cashouts, 1)
	assert.Equal(t, 1.5, rec.cashouts[0].Multiplier)
}

func TestCashoutRejectedWhileWaiting(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(newFakeStore())
	e.StartNewRound(ctx)

	_, _, err := e.PlaceBet(ctx, "p1", 100, "BTC")
	require.NoError(t, err)

	_, _, _, err = e.CashOut(ctx, "p1")
	assert.ErrorIs(t, err, ErrCashoutClosed)
}

func TestCashoutAfterCrashRejected(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	e, _ := newTestEngine(st)
	e.StartNewRound(ctx)

	_, _, err := e.PlaceBet(ctx, "p1", 100, "BTC")
	require.NoError(t, err)

	e.forceActive(2.0)
	e.mu.Lock()
	round := e.crashLocked()
	e.mu.Unlock()

	_, _, _, err = e.CashOut(ctx, "p1")
	assert.ErrorIs(t, err, ErrRoundCrashed)

	// aposta aberta vira perda administrativa, sem movimento de saldo
	require.Len(t, round.Bets, 1)
	assert.True(t, round.Bets[0].Lost)
	assert.Equal(t, 100.0, round.Bets[0].LossAmount)
	p := st.playerSnapshot("p1")
	assert.Equal(t, 900.0, p.USDBalance)
}

func TestConcurrentCashoutExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	e, _ := newTestEngine(st)
	e.StartNewRound(ctx)

	_, _, err := e.PlaceBet(ctx, "p1", 100, "BTC")
	require.NoError(t, err)
	e.forceActive(2.0)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, _, errs[i] = e.CashOut(ctx, "p1")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrNoActiveBet)
		}
	}
	assert.Equal(t, 1, ok, "exatamente um cashout deve liquidar")

	p := st.playerSnapshot("p1")
	assert.InDelta(t, 1100.0, p.USDBalance, 1e-9) // 900 + 0.004*50000
	assert.InDelta(t, 0.004, p.Wallets["BTC"], 1e-12)
}

func TestPlaceBetInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	e, _ := newTestEngine(st)
	e.StartNewRound(ctx)

	_, _, err := e.PlaceBet(ctx, "p1", 2000, "BTC")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// rollback: nem o jogador recém criado sobrevive à transação
	assert.Nil(t, st.playerSnapshot("p1"))

	_, _, err = e.PlaceBet(ctx, "p1", 100, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 900.0, st.playerSnapshot("p1").USDBalance)
}

func TestPlaceBetRollbackOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.failInsertTxn = true
	e, rec := newTestEngine(st)
	e.StartNewRound(ctx)

	_, _, err := e.PlaceBet(ctx, "p1", 100, "BTC")
	require.Error(t, err)

	assert.Nil(t, st.playerSnapshot("p1"))
	assert.Empty(t, e.CurrentState().ActiveBets)
	assert.Empty(t, rec.bets)
}

func TestStaleTimerIsNoOp(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(newFakeStore())

	// relógio controlado: cada chamada avança 1ms, garantindo roundIDs distintos
	base := time.Now()
	var calls int64
	e.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Millisecond)
	}

	e.StartNewRound(ctx)
	oldID := e.current.RoundID
	e.StartNewRound(ctx)
	require.NotEqual(t, oldID, e.current.RoundID)

	// callback do round superado não pode ativar o round novo
	e.startGame(ctx, oldID)
	st := e.CurrentState()
	assert.Equal(t, string(StatusWaiting), st.GameState)
}

func TestTickCrashesExactlyAtCrashPoint(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	e, rec := newTestEngine(st)

	var crashed []float64
	e.OnRoundCrashed = func(cp float64) { crashed = append(crashed, cp) }

	e.StartNewRound(ctx)
	_, _, err := e.PlaceBet(ctx, "p1", 100, "BTC")
	require.NoError(t, err)

	e.mu.Lock()
	e.current.CrashPoint = 2.0
	roundID := e.current.RoundID
	e.mu.Unlock()

	e.startGame(ctx, roundID)
	// elapsed de 11s com growth 0.1 dá m=2.1, acima do crash point
	e.mu.Lock()
	e.startTime = e.now().Add(-11 * time.Second)
	e.mu.Unlock()

	done := e.tick(ctx, roundID)
	assert.True(t, done)

	state := e.CurrentState()
	assert.Equal(t, string(StatusCrashed), state.GameState)
	// multiplicador final cravado no crash point, nunca acima
	assert.Equal(t, 2.0, state.Multiplier)
	assert.Equal(t, 2.0, state.CrashPoint)

	require.Len(t, rec.crashes, 1)
	assert.Equal(t, 2.0, rec.crashes[0].CrashPoint)
	assert.Equal(t, []float64{2.0}, crashed)

	// liquidação assíncrona persiste o round e libera o settling
	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return !e.settling
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSettleRoundRetriesUntilPersisted(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	st.finishErrs = 2
	e, _ := newTestEngine(st)

	e.StartNewRound(ctx)
	e.mu.Lock()
	e.current.CrashPoint = 1.5
	roundID := e.current.RoundID
	e.mu.Unlock()
	e.startGame(ctx, roundID)
	e.mu.Lock()
	e.startTime = e.now().Add(-time.Minute)
	e.mu.Unlock()

	require.True(t, e.tick(ctx, roundID))

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return !e.settling
	}, 5*time.Second, 25*time.Millisecond)

	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Equal(t, 3, st.finishCalls)
	assert.Equal(t, StatusCrashed, st.rounds[roundID].Status)
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	e, _ := newTestEngine(st)

	newBalance, txHash, err := e.Deposit(ctx, "p1", 500)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, newBalance)
	assert.True(t, strings.HasPrefix(txHash, "0x"))
	assert.Equal(t, 1500.0, st.playerSnapshot("p1").USDBalance)

	_, _, err = e.Deposit(ctx, "p1", 0.001)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, _, err = e.Deposit(ctx, "p1", 200000)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCurrentStateHidesCrashPointUntilCrash(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(newFakeStore())
	e.StartNewRound(ctx)

	st := e.CurrentState()
	assert.Equal(t, string(StatusWaiting), st.GameState)
	assert.NotEmpty(t, st.RoundID)
	assert.Zero(t, st.CrashPoint)

	e.forceActive(1.2)
	st = e.CurrentState()
	assert.Zero(t, st.CrashPoint)

	e.mu.Lock()
	e.crashLocked()
	e.mu.Unlock()
	st = e.CurrentState()
	assert.NotZero(t, st.CrashPoint)
}

// stream de liquidação gravável pra inspecionar os eventos publicados
type recStream struct {
	mu     sync.Mutex
	rounds []events.RoundSettled
	bets   []events.BetSettled
}

func (r *recStream) PublishRoundSettled(_ context.Context, ev events.RoundSettled) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, ev)
	return nil
}

func (r *recStream) PublishBetSettled(_ context.Context, ev events.BetSettled) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bets = append(r.bets, ev)
	return nil
}

func TestPublishSettlementAggregates(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(newFakeStore())
	stream := &recStream{}
	e.stream = stream

	round := &Round{
		RoundID:     "round_1",
		RoundNumber: 1,
		CrashPoint:  3.5,
		Bets: []*Bet{
			{ID: "b1", PlayerID: "p1", USDAmount: 100, CryptoAmount: 0.002, Currency: "BTC",
				CashedOut: true, CashoutMultiplier: 2.0, Payout: &Payout{Crypto: 0.004, USD: 200}},
			{ID: "b2", PlayerID: "p2", USDAmount: 50, CryptoAmount: 0.001, Currency: "BTC",
				Lost: true, LossAmount: 50},
		},
	}

	e.publishSettlement(ctx, round)

	require.Len(t, stream.rounds, 1)
	rs := stream.rounds[0]
	assert.Equal(t, 2, rs.TotalBets)
	assert.Equal(t, 150.0, rs.TotalWagered)
	assert.Equal(t, 200.0, rs.TotalPaidOut)
	assert.Equal(t, 1, rs.PlayersWon)
	assert.Equal(t, 1, rs.PlayersLost)

	require.Len(t, stream.bets, 2)
	assert.Equal(t, 2.0, stream.bets[0].CashoutMultiplier)
	assert.False(t, stream.bets[1].CashedOut)
}
