package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/auth"
	"github.com/radieske/bet-escrow-poc/internal/wallet-service/dto"
	"github.com/radieske/bet-escrow-poc/internal/wallet-service/repo"
)

// Repo define a interface de operações de carteira usadas pelo handler HTTP
type Repo interface {
	GetOrCreateAccount(ctx context.Context, owner, denomination string) (*repo.Account, error)
	Deposit(ctx context.Context, owner, denomination string, amount uint64, externalRef string) (*repo.Account, error)
	Ledger(ctx context.Context, owner, denomination string, limit int) ([]repo.LedgerEntry, error)
}

// Server expõe endpoints HTTP para operações de carteira (wallet)
type Server struct {
	log  *zap.Logger
	repo Repo
}

// NewServer instancia o servidor HTTP de wallet
func NewServer(log *zap.Logger, repo Repo) *Server { return &Server{log: log, repo: repo} }

// Router retorna o mux HTTP com as rotas da API de wallet
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /wallet", s.getAccount)        // ?account=...&denomination=...
	mux.HandleFunc("POST /wallet/deposit", s.deposit)  // top-up
	mux.HandleFunc("GET /wallet/ledger", s.listLedger) // ?account=...&denomination=...&limit=
	return mux
}

// getAccount retorna (ou cria) a conta e saldo do usuário na denominação
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	owner, denom := account(r.URL.Query().Get("account")), r.URL.Query().Get("denomination")
	if owner == "" || denom == "" {
		writeError(w, http.StatusBadRequest, "account and denomination required")
		return
	}
	acc, err := s.repo.GetOrCreateAccount(r.Context(), owner, denom)
	if err != nil {
		s.fail(w, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// deposit adiciona saldo à conta do usuário
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil || amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive u64")
		return
	}
	acc, err := s.repo.Deposit(r.Context(), account(req.Account), req.Denomination, amount, req.ExternalRef)
	if err != nil {
		s.fail(w, "deposit", err)
		return
	}
	s.log.Info("deposit",
		zap.String("account", acc.Owner),
		zap.String("denomination", acc.Denomination),
		zap.Uint64("amount", amount),
	)
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// listLedger retorna o extrato da conta
func (s *Server) listLedger(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner, denom := account(q.Get("account")), q.Get("denomination")
	if owner == "" || denom == "" {
		writeError(w, http.StatusBadRequest, "account and denomination required")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	entries, err := s.repo.Ledger(r.Context(), owner, denom, limit)
	if err != nil {
		s.fail(w, "ledger", err)
		return
	}
	out := make([]dto.LedgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.LedgerEntryResponse{
			ID:           e.ID,
			Operation:    e.Operation,
			Amount:       strconv.FormatUint(e.Amount, 10),
			Counterparty: e.Counterparty,
			ExternalRef:  e.ExternalRef,
			RelatedBetID: e.RelatedBetID,
			CreatedAt:    e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repo.ErrInvalidAccount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, escrow.ErrArithmeticOverflow):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// account usa a mesma forma de conta que o escrow-service recupera das assinaturas
func account(raw string) string { return string(auth.Canonical(raw)) }

func toAccountResponse(a *repo.Account) dto.AccountResponse {
	return dto.AccountResponse{
		Account:      a.Owner,
		AccountID:    a.ID,
		Denomination: a.Denomination,
		Kind:         a.Kind,
		BetID:        a.BetID,
		Balance:      strconv.FormatUint(a.Balance, 10),
	}
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}
