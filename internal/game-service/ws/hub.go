package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/crash-game-platform-poc/internal/game-service/engine"
	"github.com/radieske/crash-game-platform-poc/pkg/contracts/events"
)

// intervalo mínimo entre tentativas de cashout por conexão
const cashoutCooldown = time.Second

// Game é o que o hub precisa do engine: estado corrente pra conexões
// novas e o comando de cashout vindo do socket
type Game interface {
	CurrentState() engine.State
	CashOut(ctx context.Context, playerID string) (float64, engine.Payout, string, error)
}

// Hub gerencia as conexões WebSocket do jogo. Diferente de um hub com
// assinaturas por evento, aqui todo evento vai para todos os clientes.
type Hub struct {
	log      *zap.Logger
	game     Game
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*client]struct{}
}

// client embrulha a conexão com o lock de escrita (gorilla permite um
// escritor por vez) e o marcador de rate limit do cashout
type client struct {
	conn *websocket.Conn

	wmu         sync.Mutex
	lastCashout time.Time
}

func (c *client) writeJSON(v interface{}) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *client) writeRaw(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// NewHub cria o hub com política customizada de origem (CORS)
func NewHub(log *zap.Logger, game Game, allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		log:      log,
		game:     game,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		conns:    make(map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão: manda o estado
// corrente na entrada, processa comandos (cashout, ping) e remove a
// conexão ao desconectar
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		conn.Close()
	}()

	// estado corrente para o cliente recém conectado
	_ = c.writeJSON(events.Envelope{Type: "gameState", Payload: h.game.CurrentState()})

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "cashout":
			h.handleCashout(r.Context(), c, msg)
		case "ping":
			_ = c.writeJSON(map[string]string{"type": "pong"})
		}
	}
}

// handleCashout aplica o rate limit de 1 tentativa/segundo por conexão
// antes de encaminhar o comando ao engine
func (h *Hub) handleCashout(ctx context.Context, c *client, msg ClientMsg) {
	if msg.PlayerID == "" {
		_ = c.writeJSON(CashoutResult{Success: false, Error: "playerId required"})
		return
	}

	c.wmu.Lock()
	now := time.Now()
	tooSoon := !c.lastCashout.IsZero() && now.Sub(c.lastCashout) < cashoutCooldown
	if !tooSoon {
		c.lastCashout = now
	}
	c.wmu.Unlock()

	if tooSoon {
		_ = c.writeJSON(CashoutResult{Success: false, Error: "please wait before attempting another cashout"})
		return
	}

	m, payout, txHash, err := h.game.CashOut(ctx, msg.PlayerID)
	if err != nil {
		_ = c.writeJSON(CashoutResult{Success: false, Error: err.Error()})
		return
	}
	_ = c.writeJSON(CashoutResult{
		Success:         true,
		Multiplier:      m,
		CryptoPayout:    payout.Crypto,
		USDPayout:       payout.USD,
		TransactionHash: txHash,
	})
}

// Broadcast repassa um envelope já serializado para todas as conexões.
// Entrega best-effort: erro de escrita não remove a conexão aqui, o
// read loop dela vai falhar e fazer a limpeza.
func (h *Hub) Broadcast(raw []byte) {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.writeRaw(raw)
	}
}
