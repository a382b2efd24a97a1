package dto

import "github.com/radieske/crash-game-platform-poc/internal/game-service/engine"

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type PlaceBetResponse struct {
	Success         bool        `json:"success"`
	RoundID         string      `json:"roundId"`
	Bet             *engine.Bet `json:"bet"`
	TransactionHash string      `json:"transactionHash"`
}

type CashoutResponse struct {
	Success         bool          `json:"success"`
	Multiplier      float64       `json:"multiplier"`
	Payout          engine.Payout `json:"payout"`
	TransactionHash string        `json:"transactionHash"`
}

type VerifyResponse struct {
	Success         bool    `json:"success"`
	RoundID         string  `json:"roundId"`
	Valid           bool    `json:"valid"`
	ProvidedSeed    string  `json:"providedSeed"`
	StoredHash      string  `json:"storedHash"`
	CalculatedHash  string  `json:"calculatedHash"`
	CrashPoint      float64 `json:"crashPoint"`
	HashMatches     bool    `json:"hashMatches"`
	CrashPointValid bool    `json:"crashPointValid"`
}

// RoundSummary é a linha do histórico de rounds crashados
type RoundSummary struct {
	RoundID        string  `json:"roundId"`
	CrashPoint     float64 `json:"crashPoint"`
	StartTime      int64   `json:"startTime"`
	EndTime        int64   `json:"endTime"`
	TotalBets      int     `json:"totalBets"`
	TotalBetAmount float64 `json:"totalBetAmount"`
	TotalPayouts   float64 `json:"totalPayouts"`
	Hash           string  `json:"hash"` // p/ verificação provably-fair
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type HistoryResponse struct {
	Success    bool           `json:"success"`
	Data       []RoundSummary `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

type RoundDetailSummary struct {
	TotalBets      int     `json:"totalBets"`
	TotalBetAmount float64 `json:"totalBetAmount"`
	TotalPayouts   float64 `json:"totalPayouts"`
	PlayersWon     int     `json:"playersWon"`
	PlayersLost    int     `json:"playersLost"`
}

type RoundDetailResponse struct {
	Success      bool                  `json:"success"`
	Round        *engine.Round         `json:"round"`
	Transactions []*engine.Transaction `json:"transactions"`
	Summary      RoundDetailSummary    `json:"summary"`
}

// WalletBalance traz o saldo cripto com o valor USD ao preço corrente
type WalletBalance struct {
	Balance      float64 `json:"balance"`
	USDValue     float64 `json:"usdValue"`
	CurrentPrice float64 `json:"currentPrice"`
}

type WalletResponse struct {
	Success         bool                     `json:"success"`
	PlayerID        string                   `json:"playerId"`
	Name            string                   `json:"name"`
	TotalUSDBalance float64                  `json:"totalUsdBalance"`
	Wallets         map[string]WalletBalance `json:"wallets"`
}

type DepositResponse struct {
	Success         bool    `json:"success"`
	NewBalance      float64 `json:"newBalance"`
	TransactionHash string  `json:"transactionHash"`
}

type TransactionsResponse struct {
	Success      bool                  `json:"success"`
	Transactions []*engine.Transaction `json:"transactions"`
	Pagination   Pagination            `json:"pagination"`
}
