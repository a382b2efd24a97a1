package topics

const (
	// Liquidação de rounds/apostas
	RoundSettled = "round_settled"
	BetSettled   = "bet_settled"

	// DLQs
	RoundSettledDLQ = "round_settled_dlq"
)
