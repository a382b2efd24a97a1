package events

import "time"

// Evento publicado no tópico "round_settled" após a persistência do crash.
// Consumido pelo round-archiver-worker para montar as estatísticas por round.
type RoundSettled struct {
	RoundID         string    `json:"round_id"`
	RoundNumber     int64     `json:"round_number"`
	CrashPoint      float64   `json:"crash_point"`
	Hash            string    `json:"hash"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	TotalBets       int       `json:"total_bets"`
	TotalWagered    float64   `json:"total_wagered_usd"`
	TotalPaidOut    float64   `json:"total_paid_out_usd"`
	PlayersWon      int       `json:"players_won"`
	PlayersLost     int       `json:"players_lost"`
	SettledAtUnixMs int64     `json:"settled_at_unix_ms"`
}

// Evento publicado no tópico "bet_settled", um por aposta do round
type BetSettled struct {
	RoundID           string  `json:"round_id"`
	BetID             string  `json:"bet_id"`
	PlayerID          string  `json:"player_id"`
	USDAmount         float64 `json:"usd_amount"`
	CryptoAmount      float64 `json:"crypto_amount"`
	Currency          string  `json:"currency"`
	CashedOut         bool    `json:"cashed_out"`
	CashoutMultiplier float64 `json:"cashout_multiplier,omitempty"`
	USDPayout         float64 `json:"usd_payout,omitempty"`
	TsUnixMs          int64   `json:"ts_unix_ms"`
}
