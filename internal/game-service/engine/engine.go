package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/crash-game-platform-poc/internal/game-service/fair"
	"github.com/radieske/crash-game-platform-poc/internal/shared/config"
	"github.com/radieske/crash-game-platform-poc/pkg/contracts/events"
)

// Limites de aposta em USD
const (
	MinBetUSD = 1.0
	MaxBetUSD = 10000.0
)

// Oracle fornece o preço corrente de uma moeda (cacheado, latência limitada).
// Só é consultado no momento da aposta, nunca no caminho do tick.
type Oracle interface {
	GetPrice(ctx context.Context, currency string) (float64, error)
}

// Broadcaster é a interface tipada de publicação de eventos do jogo.
// Conjunto fechado de variantes; entrega best-effort para todos os clientes.
type Broadcaster interface {
	NewRound(ctx context.Context, ev events.NewRound)
	GameStarted(ctx context.Context, ev events.GameStarted)
	MultiplierUpdate(ctx context.Context, ev events.MultiplierUpdate)
	GameCrashed(ctx context.Context, ev events.GameCrashed)
	NewBet(ctx context.Context, ev events.NewBet)
	PlayerCashedOut(ctx context.Context, ev events.PlayerCashedOut)
}

// StreamPublisher publica os eventos de liquidação no Kafka (opcional)
type StreamPublisher interface {
	PublishRoundSettled(ctx context.Context, ev events.RoundSettled) error
	PublishBetSettled(ctx context.Context, ev events.BetSettled) error
}

// Engine é o dono único do estado mutável do round corrente: round, índice
// de apostas ativas e multiplicador. Toda mutação passa pelo mutex
// (disciplina single-writer); o tick toma a mesma exclusão só para decidir
// crash-vs-broadcast e nunca faz I/O bloqueante segurando o lock.
type Engine struct {
	log    *zap.Logger
	store  Store
	oracle Oracle
	bcast  Broadcaster
	stream StreamPublisher // pode ser nil
	cfg    config.GameConfig

	mu         sync.Mutex
	current    *Round
	status     Status
	startTime  time.Time
	multiplier float64
	activeBets map[string]*Bet
	settling   bool

	now func() time.Time

	// callbacks de métricas, ligadas no main (mesmo padrão do worker)
	OnBetPlaced    func()
	OnCashout      func()
	OnRoundStarted func()
	OnRoundCrashed func(crashPoint float64)
	OnError        func(stage string)
}

func New(log *zap.Logger, store Store, oracle Oracle, bcast Broadcaster, stream StreamPublisher, cfg config.GameConfig) *Engine {
	return &Engine{
		log:        log,
		store:      store,
		oracle:     oracle,
		bcast:      bcast,
		stream:     stream,
		cfg:        cfg,
		status:     StatusWaiting,
		multiplier: 1.0,
		activeBets: make(map[string]*Bet),
		now:        time.Now,
	}
}

// Start dispara o loop de rounds. Roda até o contexto ser cancelado.
func (e *Engine) Start(ctx context.Context) {
	e.log.Info("game engine started")
	e.StartNewRound(ctx)
}

// State é o snapshot consistente devolvido a clientes recém conectados
type State struct {
	GameState   string  `json:"gameState"`
	Multiplier  float64 `json:"multiplier"`
	RoundID     string  `json:"roundId,omitempty"`
	CrashPoint  float64 `json:"crashPoint,omitempty"` // só após o crash
	ActiveBets  []Bet   `json:"activeBets"`
	TimeElapsed float64 `json:"timeElapsed"`
}

// CurrentState retorna o estado corrente do jogo sob o lock do engine
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		GameState:  string(e.status),
		Multiplier: round2(e.multiplier),
		ActiveBets: make([]Bet, 0, len(e.activeBets)),
	}
	if e.current != nil {
		st.RoundID = e.current.RoundID
		if e.status == StatusCrashed {
			st.CrashPoint = e.current.CrashPoint
		}
	}
	if !e.startTime.IsZero() {
		st.TimeElapsed = e.now().Sub(e.startTime).Seconds()
	}
	for _, b := range e.activeBets {
		st.ActiveBets = append(st.ActiveBets, *b)
	}
	return st
}

// VerifyCrashPoint é a superfície read-only de verificação provably-fair
func (e *Engine) VerifyCrashPoint(seed string, roundNumber int64, crashPoint float64) bool {
	return fair.Verify(seed, roundNumber, crashPoint)
}

func (e *Engine) fireError(stage string) {
	if e.OnError != nil {
		e.OnError(stage)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
