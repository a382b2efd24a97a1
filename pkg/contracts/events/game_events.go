package events

// Tipos dos eventos de broadcast enviados aos clientes (WebSocket).
// Conjunto fechado: qualquer variante nova precisa entrar aqui e no Envelope.
const (
	TypeNewRound         = "newRound"
	TypeGameStarted      = "gameStarted"
	TypeMultiplierUpdate = "multiplierUpdate"
	TypeGameCrashed      = "gameCrashed"
	TypeNewBet           = "newBet"
	TypePlayerCashedOut  = "playerCashedOut"
)

// Envelope embrulha qualquer variante de evento para transporte
// (Redis Pub/Sub -> hub WebSocket -> clientes)
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewRound é publicado quando a janela de apostas abre.
// O seed é mantido secreto: só o hash (compromisso) é divulgado.
type NewRound struct {
	RoundID string `json:"roundId"`
	Hash    string `json:"hash"`
	Status  string `json:"status"`
}

type GameStarted struct {
	RoundID   string `json:"roundId"`
	StartTime int64  `json:"startTime"` // unix millis
	Status    string `json:"status"`
}

// MultiplierUpdate sai a cada tick (100ms) enquanto o round está ativo
type MultiplierUpdate struct {
	Multiplier float64 `json:"multiplier"`
	Elapsed    float64 `json:"elapsed"` // segundos desde o início
	RoundID    string  `json:"roundId"`
}

type GameCrashed struct {
	CrashPoint      float64 `json:"crashPoint"`
	RoundID         string  `json:"roundId"`
	FinalMultiplier float64 `json:"finalMultiplier"`
}

type NewBet struct {
	PlayerID     string  `json:"playerId"`
	PlayerName   string  `json:"playerName"`
	USDAmount    float64 `json:"usdAmount"`
	Currency     string  `json:"currency"`
	CryptoAmount float64 `json:"cryptoAmount"`
	RoundID      string  `json:"roundId"`
}

type PlayerCashedOut struct {
	PlayerID     string  `json:"playerId"`
	PlayerName   string  `json:"playerName"`
	Multiplier   float64 `json:"multiplier"`
	CryptoPayout float64 `json:"cryptoPayout"`
	USDPayout    float64 `json:"usdPayout"`
	Currency     string  `json:"currency"`
	RoundID      string  `json:"roundId"`
}
