package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func upstream(name string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, name+" "+r.Method+" "+r.URL.RequestURI())
	}))
}

func TestRouterStripsPrefixPerUpstream(t *testing.T) {
	escrow, wallet := upstream("escrow"), upstream("wallet")
	defer escrow.Close()
	defer wallet.Close()

	h, err := NewRouter(zap.NewNop(), Upstreams{Escrow: escrow.URL, Wallet: wallet.URL})
	if err != nil {
		t.Fatal(err)
	}
	gw := httptest.NewServer(h)
	defer gw.Close()

	tests := []struct {
		path string
		want string
	}{
		{"/api/escrow/v1/bets?resolved=false", "escrow GET /v1/bets?resolved=false"},
		{"/api/escrow/v1/bets/abc", "escrow GET /v1/bets/abc"},
		{"/api/wallet/wallet?account=0xabc", "wallet GET /wallet?account=0xabc"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(gw.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if string(body) != tt.want {
				t.Errorf("got %q, want %q", body, tt.want)
			}
		})
	}

	resp, err := http.Get(gw.URL + "/api/odds/x")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown prefix status = %d", resp.StatusCode)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	h, err := NewRouter(zap.NewNop(), Upstreams{Escrow: "http://127.0.0.1:1", Wallet: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodOptions, "/api/escrow/v1/bets", nil)
	req.Header.Set("Origin", "http://app.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-Signature")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("allow-origin = %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Header().Get("Access-Control-Allow-Headers") == "" {
		t.Error("signature header not allowed in preflight")
	}
}

func TestRouterUpstreamDown(t *testing.T) {
	h, _ := NewRouter(zap.NewNop(), Upstreams{Escrow: "http://127.0.0.1:1", Wallet: "http://127.0.0.1:1"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/wallet/wallet", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestNewRouterRejectsBadUpstream(t *testing.T) {
	if _, err := NewRouter(zap.NewNop(), Upstreams{Escrow: "localhost", Wallet: "http://w"}); err == nil {
		t.Fatal("expected error for upstream without scheme")
	}
}
