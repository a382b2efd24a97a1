package engine

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Status do round. Exatamente um round fica em waiting/active por vez.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCrashed   Status = "crashed"
	StatusCompleted Status = "completed"
)

// Round é o ciclo completo: janela de apostas, fase ativa, crash, liquidação.
// O seed fica secreto até o crash; o hash é o compromisso publicado.
type Round struct {
	RoundID     string    `json:"roundId"`
	RoundNumber int64     `json:"roundNumber"`
	Seed        string    `json:"seed,omitempty"`
	Hash        string    `json:"hash"`
	CrashPoint  float64   `json:"crashPoint"`
	Status      Status    `json:"status"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime,omitempty"`
	Bets        []*Bet    `json:"bets"`
}

type Payout struct {
	Crypto float64 `json:"crypto"`
	USD    float64 `json:"usd"`
}

// Bet registra a aposta com o preço congelado no momento do aceite.
// Todo o cálculo de payout usa PriceAtTime, nunca o preço corrente,
// para eliminar exploits de timing contra o oráculo.
type Bet struct {
	ID                string    `json:"id"`
	PlayerID          string    `json:"playerId"`
	PlayerName        string    `json:"playerName"`
	USDAmount         float64   `json:"usdAmount"`
	CryptoAmount      float64   `json:"cryptoAmount"`
	Currency          string    `json:"currency"`
	PriceAtTime       float64   `json:"priceAtTime"`
	CashedOut         bool      `json:"cashedOut"`
	CashoutMultiplier float64   `json:"cashoutMultiplier,omitempty"`
	Payout            *Payout   `json:"payout,omitempty"`
	Lost              bool      `json:"lost,omitempty"`
	LossAmount        float64   `json:"lossAmount,omitempty"`
	PlacedAt          time.Time `json:"placedAt"`
}

// Player mantém o saldo USD e as carteiras cripto por moeda
type Player struct {
	PlayerID   string             `json:"playerId"`
	Name       string             `json:"name"`
	USDBalance float64            `json:"totalUsdBalance"`
	Wallets    map[string]float64 `json:"wallets"`
}

// Tipos de transação do ledger
const (
	TxBet     = "bet"
	TxCashout = "cashout"
	TxDeposit = "deposit"
)

// Transaction é o registro imutável de cada movimento (aposta, saque, depósito)
type Transaction struct {
	ID           string    `json:"id"`
	PlayerID     string    `json:"playerId"`
	RoundID      string    `json:"roundId,omitempty"`
	USDAmount    float64   `json:"usdAmount"`
	CryptoAmount float64   `json:"cryptoAmount"`
	Currency     string    `json:"currency"`
	Type         string    `json:"transactionType"`
	Hash         string    `json:"transactionHash"`
	PriceAtTime  float64   `json:"priceAtTime"`
	Multiplier   float64   `json:"multiplier,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewTransactionHash gera um hash de transação estilo blockchain (mock)
func NewTransactionHash() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return "0x" + hex.EncodeToString(b)
}
