package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/radieske/crash-game-platform-poc/internal/game-service/dto"
	"github.com/radieske/crash-game-platform-poc/internal/game-service/engine"
	"github.com/radieske/crash-game-platform-poc/internal/game-service/fair"
)

// Game é a superfície síncrona do engine consumida pela API
type Game interface {
	PlaceBet(ctx context.Context, playerID string, usdAmount float64, currency string) (*engine.Bet, string, error)
	CashOut(ctx context.Context, playerID string) (float64, engine.Payout, string, error)
	Deposit(ctx context.Context, playerID string, amount float64) (float64, string, error)
	CurrentState() engine.State
	VerifyCrashPoint(seed string, roundNumber int64, crashPoint float64) bool
}

// Reader são as consultas de leitura (histórico, rounds, carteiras)
type Reader interface {
	GetRound(ctx context.Context, roundID string) (*engine.Round, error)
	ListCrashedRounds(ctx context.Context, limit, offset int) ([]*engine.Round, int, error)
	GetPlayer(ctx context.Context, playerID string) (*engine.Player, error)
	ListTransactions(ctx context.Context, playerID, txType string, limit, offset int) ([]*engine.Transaction, error)
	TransactionsByRound(ctx context.Context, roundID string) ([]*engine.Transaction, error)
}

// Oracle dá o preço corrente pra valorar carteiras cripto em USD
type Oracle interface {
	GetPrice(ctx context.Context, currency string) (float64, error)
}

type Server struct {
	log    *zap.Logger
	game   Game
	reader Reader
	oracle Oracle
}

func NewServer(log *zap.Logger, game Game, reader Reader, oracle Oracle) *Server {
	return &Server{log: log, game: game, reader: reader, oracle: oracle}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/game/bet", s.placeBet)         // POST
	mux.HandleFunc("/game/cashout", s.cashout)      // POST
	mux.HandleFunc("/game/current", s.currentState) // GET
	mux.HandleFunc("/game/verify", s.verify)        // POST
	mux.HandleFunc("/game/history", s.history)      // GET
	mux.HandleFunc("/game/round/", s.roundDetail)   // GET /game/round/{roundId}
	mux.HandleFunc("/wallet/", s.wallet)            // GET/POST /wallet/{playerId}[/deposit|/transactions]
	return mux
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.PlayerID == "" || len(req.PlayerID) > 50 {
		writeError(w, http.StatusBadRequest, "invalid playerId")
		return
	}

	bet, txHash, err := s.game.PlaceBet(r.Context(), req.PlayerID, req.USDAmount, req.Currency)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, dto.PlaceBetResponse{
		Success:         true,
		RoundID:         s.game.CurrentState().RoundID,
		Bet:             bet,
		TransactionHash: txHash,
	})
}

func (s *Server) cashout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.CashoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "playerId required")
		return
	}

	m, payout, txHash, err := s.game.CashOut(r.Context(), req.PlayerID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, dto.CashoutResponse{
		Success:         true,
		Multiplier:      m,
		Payout:          payout,
		TransactionHash: txHash,
	})
}

func (s *Server) currentState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.game.CurrentState())
}

// verify recalcula crash point e hash a partir do seed revelado.
// Só funciona para rounds já crashados: antes disso o seed nem está
// disponível e o resultado não pode ser exposto.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.RoundID == "" || req.Seed == "" {
		writeError(w, http.StatusBadRequest, "roundId and seed are required")
		return
	}

	round, err := s.reader.GetRound(r.Context(), req.RoundID)
	if err != nil {
		writeError(w, statusFor(err), "round not found")
		return
	}
	if round.Status != engine.StatusCrashed && round.Status != engine.StatusCompleted {
		writeError(w, http.StatusConflict, "round not finished yet")
		return
	}

	crashPointValid := s.game.VerifyCrashPoint(req.Seed, round.RoundNumber, round.CrashPoint)
	calculatedHash := fair.Hash(req.Seed, round.RoundNumber)
	hashMatches := calculatedHash == round.Hash

	writeJSON(w, dto.VerifyResponse{
		Success:         true,
		RoundID:         round.RoundID,
		Valid:           crashPointValid && hashMatches,
		ProvidedSeed:    req.Seed,
		StoredHash:      round.Hash,
		CalculatedHash:  calculatedHash,
		CrashPoint:      round.CrashPoint,
		HashMatches:     hashMatches,
		CrashPointValid: crashPointValid,
	})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit, page := pageParams(r, 50)

	rounds, total, err := s.reader.ListCrashedRounds(r.Context(), limit, (page-1)*limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]dto.RoundSummary, 0, len(rounds))
	for _, round := range rounds {
		sum := dto.RoundSummary{
			RoundID:    round.RoundID,
			CrashPoint: round.CrashPoint,
			StartTime:  round.StartTime.UnixMilli(),
			EndTime:    round.EndTime.UnixMilli(),
			TotalBets:  len(round.Bets),
			Hash:       round.Hash,
		}
		for _, b := range round.Bets {
			sum.TotalBetAmount += b.USDAmount
			if b.CashedOut && b.Payout != nil {
				sum.TotalPayouts += b.Payout.USD
			}
		}
		out = append(out, sum)
	}

	writeJSON(w, dto.HistoryResponse{
		Success:    true,
		Data:       out,
		Pagination: dto.Pagination{Page: page, Limit: limit, Total: total},
	})
}

func (s *Server) roundDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	roundID := strings.TrimPrefix(r.URL.Path, "/game/round/")
	if roundID == "" {
		writeError(w, http.StatusBadRequest, "roundId required")
		return
	}

	round, err := s.reader.GetRound(r.Context(), roundID)
	if err != nil {
		writeError(w, statusFor(err), "round not found")
		return
	}

	txns, err := s.reader.TransactionsByRound(r.Context(), roundID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sum := dto.RoundDetailSummary{TotalBets: len(round.Bets)}
	for _, b := range round.Bets {
		sum.TotalBetAmount += b.USDAmount
		if b.CashedOut {
			sum.PlayersWon++
			if b.Payout != nil {
				sum.TotalPayouts += b.Payout.USD
			}
		} else {
			sum.PlayersLost++
		}
	}

	writeJSON(w, dto.RoundDetailResponse{
		Success:      true,
		Round:        round,
		Transactions: txns,
		Summary:      sum,
	})
}

// wallet roteia /wallet/{playerId}, /wallet/{playerId}/deposit e
// /wallet/{playerId}/transactions
func (s *Server) wallet(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/wallet/")
	parts := strings.SplitN(rest, "/", 2)
	playerID := parts[0]
	if playerID == "" {
		writeError(w, http.StatusBadRequest, "playerId required")
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getWallet(w, r, playerID)
	case action == "deposit" && r.Method == http.MethodPost:
		s.deposit(w, r, playerID)
	case action == "transactions" && r.Method == http.MethodGet:
		s.transactions(w, r, playerID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request, playerID string) {
	player, err := s.reader.GetPlayer(r.Context(), playerID)
	if err != nil {
		writeError(w, statusFor(err), "player not found")
		return
	}

	wallets := make(map[string]dto.WalletBalance, len(player.Wallets))
	for cur, bal := range player.Wallets {
		price, perr := s.oracle.GetPrice(r.Context(), cur)
		if perr != nil {
			price = 0
		}
		wallets[cur] = dto.WalletBalance{
			Balance:      bal,
			USDValue:     bal * price,
			CurrentPrice: price,
		}
	}

	writeJSON(w, dto.WalletResponse{
		Success:         true,
		PlayerID:        player.PlayerID,
		Name:            player.Name,
		TotalUSDBalance: player.USDBalance,
		Wallets:         wallets,
	})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request, playerID string) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	newBalance, txHash, err := s.game.Deposit(r.Context(), playerID, req.Amount)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, dto.DepositResponse{
		Success:         true,
		NewBalance:      newBalance,
		TransactionHash: txHash,
	})
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request, playerID string) {
	limit, page := pageParams(r, 100)
	txType := r.URL.Query().Get("type")
	if txType != "" && txType != engine.TxBet && txType != engine.TxCashout && txType != engine.TxDeposit {
		writeError(w, http.StatusBadRequest, "invalid transaction type")
		return
	}

	txns, err := s.reader.ListTransactions(r.Context(), playerID, txType, limit, (page-1)*limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, dto.TransactionsResponse{
		Success:      true,
		Transactions: txns,
		Pagination:   dto.Pagination{Page: page, Limit: limit, Total: len(txns)},
	})
}

func pageParams(r *http.Request, defLimit int) (limit, page int) {
	limit = defLimit
	page = 1
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	return limit, page
}

// statusFor mapeia os erros de validação/conflito do engine pro HTTP
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrRoundCrashed),
		errors.Is(err, engine.ErrAlreadyCashedOut),
		errors.Is(err, engine.ErrBetExists):
		return http.StatusConflict
	case errors.Is(err, engine.ErrPlayerNotFound),
		errors.Is(err, engine.ErrRoundNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidCurrency),
		errors.Is(err, engine.ErrBettingClosed),
		errors.Is(err, engine.ErrCashoutClosed),
		errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrNoActiveBet),
		errors.Is(err, engine.ErrNoActiveRound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dto.ErrorResponse{Success: false, Error: msg})
}
