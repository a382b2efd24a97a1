package ws

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: cashout | ping
type ClientMsg struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"` // requerido em cashout
}

// CashoutResult é a resposta direta ao comando cashout do próprio cliente
type CashoutResult struct {
	Success         bool    `json:"success"`
	Multiplier      float64 `json:"multiplier,omitempty"`
	CryptoPayout    float64 `json:"cryptoPayout,omitempty"`
	USDPayout       float64 `json:"usdPayout,omitempty"`
	TransactionHash string  `json:"transactionHash,omitempty"`
	Error           string  `json:"error,omitempty"`
}
