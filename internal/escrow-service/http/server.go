package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/auth"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/dto"
)

// BetCache é o cache-aside da visão de uma aposta
type BetCache interface {
	GetBet(ctx context.Context, betID string, dst any) (bool, error)
	SetBet(ctx context.Context, betID string, v any) error
	Invalidate(ctx context.Context, betID string) error
}

// Publisher publica o ciclo de vida das apostas
type Publisher interface {
	PublishBetCreated(ctx context.Context, b *escrow.Bet) error
	PublishStakePlaced(ctx context.Context, b *escrow.Bet, s escrow.Stake) error
	PublishBetResolved(ctx context.Context, r *escrow.Resolution) error
}

// API expõe BetRegistry, StakeLedger e ResolutionEngine via REST.
// Cache, Publisher e WS são opcionais.
type API struct {
	Log       *zap.Logger
	Service   *escrow.Service
	Cache     BetCache
	Publisher Publisher
	Auth      func(http.Handler) http.Handler
	WS        http.HandlerFunc
}

const publishTimeout = 2 * time.Second

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	authed := a.Auth
	if authed == nil {
		authed = func(h http.Handler) http.Handler { return h }
	}

	r.Get("/v1/bets", a.listBets)    // ?creator=&resolved=&limit=
	r.Get("/v1/bets/{id}", a.getBet) // cache-aside
	r.Group(func(r chi.Router) {
		r.Use(authed)
		r.Post("/v1/bets", a.createBet)
		r.Post("/v1/bets/{id}/stakes", a.placeStake)
		r.Post("/v1/bets/{id}/resolve", a.resolve)
	})
	if a.WS != nil {
		r.Get("/ws", a.WS)
	}
	return r
}

func (a *API) createBet(w http.ResponseWriter, r *http.Request) {
	creator, _ := auth.Account(r.Context())
	var req dto.CreateBetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
		return
	}

	bet, err := a.Service.CreateBet(r.Context(), creator, req.Question, req.ExpiryTime, req.TokenDenomination)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Log.Info("bet created",
		zap.String("betId", bet.ID),
		zap.String("creator", string(creator)),
		zap.Time("expiry", bet.ExpiryTime),
	)
	a.publish(r, "bet_created", func(ctx context.Context) error { return a.Publisher.PublishBetCreated(ctx, bet) })
	writeJSON(w, http.StatusCreated, dto.FromBet(bet))
}

func (a *API) listBets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := escrow.ListFilter{Creator: escrow.AccountID(q.Get("creator"))}
	if v := q.Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "resolved must be a boolean")
			return
		}
		f.Resolved = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_input", "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	bets, err := a.Service.ListBets(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]dto.BetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, dto.FromBet(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getBet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if a.Cache != nil {
		var cached dto.BetResponse
		ok, err := a.Cache.GetBet(r.Context(), id, &cached)
		if err != nil {
			a.Log.Warn("bet cache get failed", zap.String("betId", id), zap.Error(err))
		}
		if ok && err == nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	bet, err := a.Service.GetBet(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	view := dto.FromBet(bet)
	if a.Cache != nil {
		if err := a.Cache.SetBet(r.Context(), id, view); err != nil {
			a.Log.Warn("bet cache set failed", zap.String("betId", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) placeStake(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	staker, _ := auth.Account(r.Context())
	var req dto.PlaceStakeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
		return
	}
	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_amount", "amount must be an unsigned 64-bit integer")
		return
	}

	bet, err := a.Service.PlaceStake(r.Context(), id, staker, amount, *req.Choice)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.invalidate(r, id)
	placed := bet.Stakes[len(bet.Stakes)-1]
	a.Log.Info("stake placed",
		zap.String("betId", id),
		zap.String("staker", string(staker)),
		zap.Uint64("amount", amount),
		zap.Bool("choice", placed.Choice),
		zap.Uint64("totalStake", bet.TotalStake),
	)
	a.publish(r, "stake_placed", func(ctx context.Context) error { return a.Publisher.PublishStakePlaced(ctx, bet, placed) })
	writeJSON(w, http.StatusCreated, dto.FromBet(bet))
}

func (a *API) resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller, _ := auth.Account(r.Context())
	var req dto.ResolveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
		return
	}

	res, err := a.Service.Resolve(r.Context(), id, caller, *req.Outcome)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.invalidate(r, id)
	a.Log.Info("bet resolved",
		zap.String("betId", id),
		zap.Bool("outcome", res.Outcome),
		zap.Int("winners", len(res.Payouts)),
		zap.Uint64("dust", res.Dust),
	)
	a.publish(r, "bet_resolved", func(ctx context.Context) error { return a.Publisher.PublishBetResolved(ctx, res) })
	writeJSON(w, http.StatusOK, dto.FromResolution(res))
}

// publish não falha a requisição: o estado já foi gravado
func (a *API) publish(r *http.Request, event string, fn func(context.Context) error) {
	if a.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), publishTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		a.Log.Warn("event publish failed", zap.String("event", event), zap.Error(err))
	}
}

func (a *API) invalidate(r *http.Request, betID string) {
	if a.Cache == nil {
		return
	}
	if err := a.Cache.Invalidate(r.Context(), betID); err != nil {
		a.Log.Warn("bet cache invalidate failed", zap.String("betId", betID), zap.Error(err))
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := escrow.Kind(err)
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		a.Log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("requestId", chimiddleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, status, kind, "internal error")
		return
	}
	writeError(w, status, kind, err.Error())
}

// StatusFor mapeia erros do núcleo para status HTTP
func StatusFor(err error) int {
	switch {
	case errors.Is(err, escrow.ErrBetNotFound):
		return http.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorizedResolver):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrTransferFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidExpiry),
		errors.Is(err, escrow.ErrAllocation),
		errors.Is(err, escrow.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, escrow.ErrBetAlreadyResolved),
		errors.Is(err, escrow.ErrBetExpired),
		errors.Is(err, escrow.ErrBetNotExpired),
		errors.Is(err, escrow.ErrStakeCapacityExceeded),
		errors.Is(err, escrow.ErrNoWinningStakes):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "bad json")
		return false
	}
	return true
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: kind, Message: msg})
}
