package http

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/auth"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/dto"
	"github.com/radieske/bet-escrow-poc/internal/escrow/memstore"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type mapCache struct {
	mu          sync.Mutex
	items       map[string][]byte
	hits        int
	invalidated []string
}

func (c *mapCache) GetBet(_ context.Context, id string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.items[id]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(b, dst)
}

func (c *mapCache) SetBet(_ context.Context, id string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(v)
	c.items[id] = b
	return err
}

func (c *mapCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type recordingPublisher struct {
	events []string
	fail   bool
}

func (p *recordingPublisher) record(kind, id string) error {
	if p.fail {
		return errors.New("broker down")
	}
	p.events = append(p.events, kind+":"+id)
	return nil
}

func (p *recordingPublisher) PublishBetCreated(_ context.Context, b *escrow.Bet) error {
	return p.record("created", b.ID)
}

func (p *recordingPublisher) PublishStakePlaced(_ context.Context, b *escrow.Bet, _ escrow.Stake) error {
	return p.record("staked", b.ID)
}

func (p *recordingPublisher) PublishBetResolved(_ context.Context, r *escrow.Resolution) error {
	return p.record("resolved", r.BetID)
}

type harness struct {
	clock  *clock
	wallet *memstore.Wallet
	cache  *mapCache
	publ   *recordingPublisher
	h      http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := &clock{now: t0}
	wallet := memstore.NewWallet()
	svc := escrow.NewService(memstore.New(wallet), c, escrow.Config{StakeCapacity: 10})
	hs := &harness{
		clock:  c,
		wallet: wallet,
		cache:  &mapCache{items: map[string][]byte{}},
		publ:   &recordingPublisher{},
	}
	api := &API{
		Log:       zap.NewNop(),
		Service:   svc,
		Cache:     hs.cache,
		Publisher: hs.publ,
		Auth:      auth.NewVerifier(time.Minute, true).Middleware,
	}
	hs.h = api.Router()
	return hs
}

func (hs *harness) call(t *testing.T, method, path, account, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if account != "" {
		req.Header.Set(auth.HeaderAccount, account)
	}
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	return rec
}

func (hs *harness) createBet(t *testing.T) dto.BetResponse {
	t.Helper()
	body := fmt.Sprintf(`{"question":"Will it rain?","expiry_time":%q,"token_denomination":"USDC"}`, t0.Add(time.Hour).Format(time.RFC3339))
	rec := hs.call(t, http.MethodPost, "/v1/bets", "creator", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var out dto.BetResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var e dto.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestBetLifecycle(t *testing.T) {
	hs := newHarness(t)
	_ = hs.wallet.Deposit("A", "USDC", 1000)
	_ = hs.wallet.Deposit("B", "USDC", 1000)

	bet := hs.createBet(t)
	if bet.Creator != "creator" || bet.TotalStake != "0" || bet.Capacity != 10 || bet.Outcome != nil {
		t.Fatalf("created bet = %+v", bet)
	}

	if rec := hs.call(t, http.MethodPost, "/v1/bets/"+bet.ID+"/stakes", "A", `{"amount":"100","choice":true}`); rec.Code != http.StatusCreated {
		t.Fatalf("stake A: %d %s", rec.Code, rec.Body)
	}
	rec := hs.call(t, http.MethodPost, "/v1/bets/"+bet.ID+"/stakes", "B", `{"amount":"300","choice":false}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("stake B: %d %s", rec.Code, rec.Body)
	}
	var staked dto.BetResponse
	_ = json.NewDecoder(rec.Body).Decode(&staked)
	if staked.TotalStake != "400" || len(staked.Stakes) != 2 {
		t.Errorf("after stakes = %+v", staked)
	}

	hs.clock.Set(t0.Add(time.Hour))
	rec = hs.call(t, http.MethodPost, "/v1/bets/"+bet.ID+"/resolve", "creator", `{"outcome":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: %d %s", rec.Code, rec.Body)
	}
	var res dto.ResolutionResponse
	_ = json.NewDecoder(rec.Body).Decode(&res)
	if len(res.Payouts) != 1 || res.Payouts[0].Amount != "400" || res.Dust != "0" {
		t.Errorf("resolution = %+v", res)
	}
	if b, _ := hs.wallet.Balance("A", "USDC"); b != 1300 {
		t.Errorf("A balance = %d", b)
	}

	want := []string{"created:" + bet.ID, "staked:" + bet.ID, "staked:" + bet.ID, "resolved:" + bet.ID}
	if strings.Join(hs.publ.events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v", hs.publ.events)
	}
	if len(hs.cache.invalidated) != 3 {
		t.Errorf("invalidations = %v", hs.cache.invalidated)
	}

	rec = hs.call(t, http.MethodGet, "/v1/bets/"+bet.ID, "", "")
	var view dto.BetResponse
	_ = json.NewDecoder(rec.Body).Decode(&view)
	if !view.IsResolved || view.Outcome == nil || !*view.Outcome {
		t.Errorf("view = %+v", view)
	}
}

func TestErrorMapping(t *testing.T) {
	hs := newHarness(t)
	_ = hs.wallet.Deposit("A", "USDC", 50)
	bet := hs.createBet(t)
	stakes := "/v1/bets/" + bet.ID + "/stakes"
	resolve := "/v1/bets/" + bet.ID + "/resolve"

	tests := []struct {
		name    string
		method  string
		path    string
		account string
		body    string
		status  int
		kind    string
	}{
		{"unknown bet", http.MethodGet, "/v1/bets/missing", "", "", http.StatusNotFound, "bet_not_found"},
		{"no credentials", http.MethodPost, stakes, "", `{"amount":"1","choice":true}`, http.StatusUnauthorized, "unauthenticated"},
		{"zero amount", http.MethodPost, stakes, "A", `{"amount":"0","choice":true}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"amount not a number", http.MethodPost, stakes, "A", `{"amount":"ten","choice":true}`, http.StatusUnprocessableEntity, "invalid_input"},
		{"amount above u64", http.MethodPost, stakes, "A", `{"amount":"18446744073709551616","choice":true}`, http.StatusUnprocessableEntity, "invalid_amount"},
		{"choice missing", http.MethodPost, stakes, "A", `{"amount":"1"}`, http.StatusUnprocessableEntity, "invalid_input"},
		{"insufficient funds", http.MethodPost, stakes, "A", `{"amount":"51","choice":true}`, http.StatusPaymentRequired, "transfer_failed"},
		{"resolve before expiry", http.MethodPost, resolve, "creator", `{"outcome":true}`, http.StatusConflict, "bet_not_expired"},
		{"unknown field", http.MethodPost, resolve, "creator", `{"outcome":true,"x":1}`, http.StatusBadRequest, "invalid_input"},
		{"bad resolved filter", http.MethodGet, "/v1/bets?resolved=maybe", "", "", http.StatusBadRequest, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := hs.call(t, tt.method, tt.path, tt.account, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if e := decodeError(t, rec); e.Error != tt.kind {
				t.Errorf("kind = %q, want %q", e.Error, tt.kind)
			}
		})
	}

	hs.clock.Set(t0.Add(time.Hour))
	if rec := hs.call(t, http.MethodPost, stakes, "A", `{"amount":"1","choice":true}`); rec.Code != http.StatusConflict || decodeError(t, rec).Error != "bet_expired" {
		t.Errorf("expired stake: %d", rec.Code)
	}
	if rec := hs.call(t, http.MethodPost, resolve, "A", `{"outcome":true}`); rec.Code != http.StatusForbidden {
		t.Errorf("non-creator resolve: %d", rec.Code)
	}
	if rec := hs.call(t, http.MethodPost, resolve, "creator", `{"outcome":true}`); rec.Code != http.StatusConflict || decodeError(t, rec).Error != "no_winning_stakes" {
		t.Errorf("empty pool resolve: %d", rec.Code)
	}
}

func TestCreateBetRejectsPastExpiry(t *testing.T) {
	hs := newHarness(t)
	body := fmt.Sprintf(`{"question":"q","expiry_time":%q,"token_denomination":"USDC"}`, t0.Add(-time.Minute).Format(time.RFC3339))
	rec := hs.call(t, http.MethodPost, "/v1/bets", "creator", body)
	if rec.Code != http.StatusUnprocessableEntity || decodeError(t, rec).Error != "invalid_expiry" {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(hs.publ.events) != 0 {
		t.Errorf("rejected create published %v", hs.publ.events)
	}
}

func TestGetBetUsesCache(t *testing.T) {
	hs := newHarness(t)
	bet := hs.createBet(t)

	for i := 0; i < 2; i++ {
		if rec := hs.call(t, http.MethodGet, "/v1/bets/"+bet.ID, "", ""); rec.Code != http.StatusOK {
			t.Fatalf("get: %d", rec.Code)
		}
	}
	if hs.cache.hits != 1 {
		t.Errorf("cache hits = %d, want 1", hs.cache.hits)
	}
}

func TestGetBetIgnoresCorruptCacheEntry(t *testing.T) {
	hs := newHarness(t)
	bet := hs.createBet(t)
	hs.cache.items[bet.ID] = []byte(`{"id":`)

	rec := hs.call(t, http.MethodGet, "/v1/bets/"+bet.ID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d %s", rec.Code, rec.Body)
	}
	var got dto.BetResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != bet.ID || got.Creator != "creator" {
		t.Errorf("served %+v", got)
	}
}

func TestReplayedStakeIsRejected(t *testing.T) {
	c := &clock{now: t0}
	wallet := memstore.NewWallet()
	verifier := auth.NewVerifier(time.Minute, false)
	verifier.Now = c.Now
	api := &API{
		Log:     zap.NewNop(),
		Service: escrow.NewService(memstore.New(wallet), c, escrow.Config{StakeCapacity: 10}),
		Auth:    verifier.Middleware,
	}
	h := api.Router()

	creator, _ := ethcrypto.GenerateKey()
	staker, _ := ethcrypto.GenerateKey()
	if err := wallet.Deposit(auth.AccountOf(staker), "USDC", 1000); err != nil {
		t.Fatal(err)
	}

	send := func(key *ecdsa.PrivateKey, path, body string, ts int64) *httptest.ResponseRecorder {
		t.Helper()
		sig, err := auth.Sign(key, http.MethodPost, path, ts, []byte(body))
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set(auth.HeaderAccount, string(auth.AccountOf(key)))
		req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(auth.HeaderSignature, sig)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	createBody := fmt.Sprintf(`{"question":"Will it rain?","expiry_time":%q,"token_denomination":"USDC"}`, t0.Add(time.Hour).Format(time.RFC3339))
	rec := send(creator, "/v1/bets", createBody, t0.Unix())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var bet dto.BetResponse
	if err := json.NewDecoder(rec.Body).Decode(&bet); err != nil {
		t.Fatal(err)
	}

	path := "/v1/bets/" + bet.ID + "/stakes"
	const stake = `{"amount":"100","choice":true}`
	for i, want := range []int{http.StatusCreated, http.StatusUnauthorized, http.StatusUnauthorized} {
		if rec := send(staker, path, stake, t0.Unix()); rec.Code != want {
			t.Fatalf("send %d: status = %d, want %d (%s)", i+1, rec.Code, want, rec.Body)
		}
	}
	// novo timestamp é uma nova autorização do staker
	if rec := send(staker, path, stake, t0.Unix()+1); rec.Code != http.StatusCreated {
		t.Fatalf("fresh signature: %d %s", rec.Code, rec.Body)
	}

	if b, _ := wallet.Balance(auth.AccountOf(staker), "USDC"); b != 800 {
		t.Errorf("staker balance = %d, want 800", b)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/bets/"+bet.ID, nil))
	var got dto.BetResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Stakes) != 2 || got.TotalStake != "200" {
		t.Errorf("stakes = %d total = %s", len(got.Stakes), got.TotalStake)
	}
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	hs := newHarness(t)
	hs.publ.fail = true
	hs.createBet(t)
}

func TestListBetsFilters(t *testing.T) {
	hs := newHarness(t)
	hs.createBet(t)
	hs.createBet(t)

	rec := hs.call(t, http.MethodGet, "/v1/bets?creator=creator&resolved=false&limit=1", "", "")
	var out []dto.BetResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Errorf("got %d bets", len(out))
	}

	rec = hs.call(t, http.MethodGet, "/v1/bets?creator=nobody", "", "")
	out = nil
	_ = json.NewDecoder(rec.Body).Decode(&out)
	if len(out) != 0 {
		t.Errorf("got %d bets for unknown creator", len(out))
	}
}

func TestStatusFor(t *testing.T) {
	wrapped := fmt.Errorf("%w: %w", escrow.ErrTransferFailed, errors.New("adapter"))
	if got := StatusFor(wrapped); got != http.StatusPaymentRequired {
		t.Errorf("wrapped transfer failure = %d", got)
	}
	if got := StatusFor(escrow.ErrStakeCapacityExceeded); got != http.StatusConflict {
		t.Errorf("capacity = %d", got)
	}
	if got := StatusFor(errors.New("db down")); got != http.StatusInternalServerError {
		t.Errorf("unknown = %d", got)
	}
}
