package dto

type PlaceBetRequest struct {
	PlayerID  string  `json:"playerId"`
	USDAmount float64 `json:"usdAmount"`
	Currency  string  `json:"currency"` // "BTC" | "ETH"
}

type CashoutRequest struct {
	PlayerID string `json:"playerId"`
}

// VerifyRequest carrega o seed revelado de um round já crashado
type VerifyRequest struct {
	RoundID string `json:"roundId"`
	Seed    string `json:"seed"`
}

type DepositRequest struct {
	Amount float64 `json:"amount"`
}
