package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/crash-game-platform-poc/internal/game-service/engine"
	"github.com/radieske/crash-game-platform-poc/internal/game-service/ws"
	"github.com/radieske/crash-game-platform-poc/pkg/contracts/events"
)

// stubGame responde sempre o mesmo cashout; o hub não sabe a diferença
type stubGame struct{}

func (stubGame) CurrentState() engine.State {
	return engine.State{GameState: "active", Multiplier: 1.25, RoundID: "round_1"}
}

func (stubGame) CashOut(_ context.Context, _ string) (float64, engine.Payout, string, error) {
	return 1.25, engine.Payout{Crypto: 0.0025, USD: 125}, "0xabc", nil
}

func dialTestHub(t *testing.T) *websocket.Conn {
	t.Helper()
	hub := ws.NewHub(zap.NewNop(), stubGame{}, func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnectionReceivesCurrentState(t *testing.T) {
	conn := dialTestHub(t)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var env events.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, "gameState", env.Type)

	payload, ok := env.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "active", payload["gameState"])
	assert.Equal(t, "round_1", payload["roundId"])
}

func TestCashoutRateLimitPerConnection(t *testing.T) {
	conn := dialTestHub(t)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// descarta o gameState inicial
	var env events.Envelope
	require.NoError(t, conn.ReadJSON(&env))

	send := func() ws.CashoutResult {
		require.NoError(t, conn.WriteJSON(ws.ClientMsg{Type: "cashout", PlayerID: "p1"}))
		var res ws.CashoutResult
		require.NoError(t, conn.ReadJSON(&res))
		return res
	}

	first := send()
	assert.True(t, first.Success)
	assert.Equal(t, 1.25, first.Multiplier)
	assert.Equal(t, 125.0, first.USDPayout)

	// segunda tentativa dentro do cooldown de 1s é barrada antes do engine
	second := send()
	assert.False(t, second.Success)
	assert.Contains(t, second.Error, "wait")
}

func TestPingPong(t *testing.T) {
	conn := dialTestHub(t)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var env events.Envelope
	require.NoError(t, conn.ReadJSON(&env))

	require.NoError(t, conn.WriteJSON(ws.ClientMsg{Type: "ping"}))
	var pong map[string]string
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])
}

func TestCashoutRequiresPlayerID(t *testing.T) {
	conn := dialTestHub(t)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var env events.Envelope
	require.NoError(t, conn.ReadJSON(&env))

	require.NoError(t, conn.WriteJSON(ws.ClientMsg{Type: "cashout"}))
	var res ws.CashoutResult
	require.NoError(t, conn.ReadJSON(&res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "playerId")
}
