// Package gateway roteia o tráfego público para os serviços internos.
package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Upstreams são as URLs base dos serviços atrás do gateway
type Upstreams struct {
	Escrow string
	Wallet string
}

func rp(log *zap.Logger, name, to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid %s upstream %q", name, to)
	}
	p := httputil.NewSingleHostReverseProxy(u)
	p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("upstream unavailable", zap.String("upstream", name), zap.String("path", r.URL.Path), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"bad_gateway","message":"upstream unavailable"}`))
	}
	return p, nil
}

// NewRouter monta o roteador do gateway:
//
//	/api/escrow/* -> escrow-service (ex.: /api/escrow/v1/bets -> /v1/bets)
//	/api/wallet/* -> wallet-service
//
// O prefixo é removido antes do proxy; a assinatura do cliente cobre o path do upstream.
func NewRouter(log *zap.Logger, up Upstreams) (http.Handler, error) {
	escrow, err := rp(log, "escrow", up.Escrow)
	if err != nil {
		return nil, err
	}
	wallet, err := rp(log, "wallet", up.Wallet)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Account", "X-Timestamp", "X-Signature"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Handle("/api/escrow/*", http.StripPrefix("/api/escrow", escrow))
	r.Handle("/api/wallet/*", http.StripPrefix("/api/wallet", wallet))
	return r, nil
}
