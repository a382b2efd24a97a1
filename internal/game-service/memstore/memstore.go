// Package memstore implementa o Store do engine inteiramente em memória.
// É o backend dos testes e de execuções locais sem Postgres; a semântica
// transacional (tudo ou nada) é a mesma do repositório Postgres.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/radieske/crash-game-platform-poc/internal/game-service/engine"
)

// Saldo USD inicial de jogadores recém criados
const StartingBalanceUSD = 1000.0

type Store struct {
	mu          sync.Mutex
	players     map[string]*engine.Player
	rounds      map[string]*engine.Round
	roundOrder  []string
	betsByRound map[string][]*engine.Bet
	txns        []*engine.Transaction
}

func New() *Store {
	return &Store{
		players:     make(map[string]*engine.Player),
		rounds:      make(map[string]*engine.Round),
		betsByRound: make(map[string][]*engine.Bet),
	}
}

func copyPlayer(p *engine.Player) *engine.Player {
	cp := *p
	cp.Wallets = make(map[string]float64, len(p.Wallets))
	for k, v := range p.Wallets {
		cp.Wallets[k] = v
	}
	return &cp
}

func copyRound(r *engine.Round) *engine.Round {
	cp := *r
	cp.Bets = make([]*engine.Bet, len(r.Bets))
	for i, b := range r.Bets {
		bc := *b
		cp.Bets[i] = &bc
	}
	return &cp
}

func (s *Store) CreateRound(_ context.Context, r *engine.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[r.RoundID]; !ok {
		s.roundOrder = append(s.roundOrder, r.RoundID)
	}
	s.rounds[r.RoundID] = copyRound(r)
	return nil
}

func (s *Store) SetRoundActive(_ context.Context, roundID string, startTimeUnixMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return engine.ErrNoActiveRound
	}
	r.Status = engine.StatusActive
	r.StartTime = time.UnixMilli(startTimeUnixMs)
	return nil
}

func (s *Store) FinishRound(_ context.Context, r *engine.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rounds[r.RoundID]; !ok {
		s.roundOrder = append(s.roundOrder, r.RoundID)
	}
	final := copyRound(r)
	// apostas do índice já persistidas via tx também ficam no snapshot final
	s.rounds[r.RoundID] = final
	s.betsByRound[r.RoundID] = final.Bets
	return nil
}

// Begin segura o lock do store até Commit/Rollback: uma unidade de
// trabalho por vez, equivalente ao isolamento da transação Postgres
func (s *Store) Begin(_ context.Context) (engine.Tx, error) {
	s.mu.Lock()
	return &memTx{
		s:       s,
		players: make(map[string]*engine.Player),
	}, nil
}

type memTx struct {
	s    *Store
	done bool

	// estado staged: cópias mutadas aqui, aplicadas só no Commit
	players map[string]*engine.Player
	bets    []stagedBet
	updates []stagedBet
	txns    []*engine.Transaction
}

type stagedBet struct {
	roundID string
	bet     *engine.Bet
}

func (t *memTx) player(playerID string) *engine.Player {
	if p, ok := t.players[playerID]; ok {
		return p
	}
	if p, ok := t.s.players[playerID]; ok {
		cp := copyPlayer(p)
		t.players[playerID] = cp
		return cp
	}
	return nil
}

func (t *memTx) GetOrCreatePlayer(_ context.Context, playerID string) (*engine.Player, error) {
	if p := t.player(playerID); p != nil {
		return copyPlayer(p), nil
	}
	p := &engine.Player{
		PlayerID:   playerID,
		Name:       playerID,
		USDBalance: StartingBalanceUSD,
		Wallets:    map[string]float64{"BTC": 0, "ETH": 0},
	}
	t.players[playerID] = p
	return copyPlayer(p), nil
}

func (t *memTx) DebitUSD(_ context.Context, playerID string, amount float64) error {
	p := t.player(playerID)
	if p == nil {
		return engine.ErrPlayerNotFound
	}
	if p.USDBalance < amount {
		return engine.ErrInsufficientFunds
	}
	p.USDBalance -= amount
	return nil
}

func (t *memTx) CreditUSD(_ context.Context, playerID string, amount float64) error {
	p := t.player(playerID)
	if p == nil {
		return engine.ErrPlayerNotFound
	}
	p.USDBalance += amount
	return nil
}

func (t *memTx) CreditWallet(_ context.Context, playerID, currency string, amount float64) error {
	p := t.player(playerID)
	if p == nil {
		return engine.ErrPlayerNotFound
	}
	p.Wallets[currency] += amount
	return nil
}

func (t *memTx) InsertBet(_ context.Context, roundID string, b *engine.Bet) error {
	bc := *b
	t.bets = append(t.bets, stagedBet{roundID: roundID, bet: &bc})
	return nil
}

func (t *memTx) UpdateBetCashout(_ context.Context, roundID string, b *engine.Bet) error {
	bc := *b
	t.updates = append(t.updates, stagedBet{roundID: roundID, bet: &bc})
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn *engine.Transaction) error {
	tc := *txn
	t.txns = append(t.txns, &tc)
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true

	for id, p := range t.players {
		t.s.players[id] = p
	}
	for _, sb := range t.bets {
		t.s.betsByRound[sb.roundID] = append(t.s.betsByRound[sb.roundID], sb.bet)
	}
	for _, sb := range t.updates {
		for i, existing := range t.s.betsByRound[sb.roundID] {
			if existing.ID == sb.bet.ID {
				t.s.betsByRound[sb.roundID][i] = sb.bet
				break
			}
		}
	}
	t.s.txns = append(t.s.txns, t.txns...)

	t.s.mu.Unlock()
	return nil
}

func (t *memTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.mu.Unlock()
	return nil
}

// ---- consultas de leitura (superfície REST e verificação) ----

func (s *Store) GetRound(_ context.Context, roundID string) (*engine.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[roundID]
	if !ok {
		return nil, engine.ErrRoundNotFound
	}
	out := copyRound(r)
	// o seed só é revelado depois do round terminar (commit-then-reveal)
	if out.Status != engine.StatusCrashed && out.Status != engine.StatusCompleted {
		out.Seed = ""
	}
	return out, nil
}

func (s *Store) ListCrashedRounds(_ context.Context, limit, offset int) ([]*engine.Round, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var crashed []*engine.Round
	// mais recente primeiro
	for i := len(s.roundOrder) - 1; i >= 0; i-- {
		r := s.rounds[s.roundOrder[i]]
		if r.Status == engine.StatusCrashed || r.Status == engine.StatusCompleted {
			crashed = append(crashed, r)
		}
	}

	total := len(crashed)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]*engine.Round, 0, end-offset)
	for _, r := range crashed[offset:end] {
		out = append(out, copyRound(r))
	}
	return out, total, nil
}

func (s *Store) GetPlayer(_ context.Context, playerID string) (*engine.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return nil, engine.ErrPlayerNotFound
	}
	return copyPlayer(p), nil
}

func (s *Store) ListTransactions(_ context.Context, playerID, txType string, limit, offset int) ([]*engine.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*engine.Transaction
	for i := len(s.txns) - 1; i >= 0; i-- {
		t := s.txns[i]
		if t.PlayerID != playerID {
			continue
		}
		if txType != "" && t.Type != txType {
			continue
		}
		out = append(out, t)
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	res := make([]*engine.Transaction, end-offset)
	for i, t := range out[offset:end] {
		tc := *t
		res[i] = &tc
	}
	return res, nil
}

func (s *Store) TransactionsByRound(_ context.Context, roundID string) ([]*engine.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*engine.Transaction
	for _, t := range s.txns {
		if t.RoundID == roundID {
			tc := *t
			out = append(out, &tc)
		}
	}
	return out, nil
}
