// Package client fala com o escrow-service e o wallet-service (diretamente ou via gateway)
// assinando cada mutação com a chave da conta.
package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/radieske/bet-escrow-poc/internal/escrow-service/auth"
	edto "github.com/radieske/bet-escrow-poc/internal/escrow-service/dto"
	wdto "github.com/radieske/bet-escrow-poc/internal/wallet-service/dto"
)

// APIError é uma resposta de erro do serviço
type APIError struct {
	Status int
	Kind   string
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.Kind, e.Msg)
}

type Client struct {
	EscrowURL string // ex.: http://localhost:8000/api/escrow
	WalletURL string // ex.: http://localhost:8000/api/wallet
	HTTP      *http.Client
	Now       func() time.Time
}

func New(escrowURL, walletURL string) *Client {
	return &Client{
		EscrowURL: escrowURL,
		WalletURL: walletURL,
		HTTP:      &http.Client{Timeout: 5 * time.Second},
		Now:       time.Now,
	}
}

// Deposit credita saldo na conta; externalRef torna a chamada idempotente
func (c *Client) Deposit(ctx context.Context, account, denomination string, amount uint64, externalRef string) (*wdto.AccountResponse, error) {
	body, _ := json.Marshal(wdto.DepositRequest{
		Account:      account,
		Denomination: denomination,
		Amount:       strconv.FormatUint(amount, 10),
		ExternalRef:  externalRef,
	})
	var out wdto.AccountResponse
	if err := c.do(ctx, http.MethodPost, c.WalletURL, "/wallet/deposit", body, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateBet(ctx context.Context, key *ecdsa.PrivateKey, question string, expiry time.Time, denomination string) (*edto.BetResponse, error) {
	body, _ := json.Marshal(edto.CreateBetRequest{Question: question, ExpiryTime: expiry, TokenDenomination: denomination})
	var out edto.BetResponse
	if err := c.do(ctx, http.MethodPost, c.EscrowURL, "/v1/bets", body, key, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PlaceStake(ctx context.Context, key *ecdsa.PrivateKey, betID string, amount uint64, choice bool) (*edto.BetResponse, error) {
	body, _ := json.Marshal(edto.PlaceStakeRequest{Amount: strconv.FormatUint(amount, 10), Choice: &choice})
	var out edto.BetResponse
	if err := c.do(ctx, http.MethodPost, c.EscrowURL, "/v1/bets/"+url.PathEscape(betID)+"/stakes", body, key, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Resolve(ctx context.Context, key *ecdsa.PrivateKey, betID string, outcome bool) (*edto.ResolutionResponse, error) {
	body, _ := json.Marshal(edto.ResolveRequest{Outcome: &outcome})
	var out edto.ResolutionResponse
	if err := c.do(ctx, http.MethodPost, c.EscrowURL, "/v1/bets/"+url.PathEscape(betID)+"/resolve", body, key, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetBet(ctx context.Context, betID string) (*edto.BetResponse, error) {
	var out edto.BetResponse
	if err := c.do(ctx, http.MethodGet, c.EscrowURL, "/v1/bets/"+url.PathEscape(betID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do assina path (relativo ao serviço, sem o prefixo do gateway) quando key != nil
func (c *Client) do(ctx context.Context, method, base, path string, body []byte, key *ecdsa.PrivateKey, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != nil {
		ts := c.Now().Unix()
		sig, err := auth.Sign(key, method, path, ts, body)
		if err != nil {
			return err
		}
		req.Header.Set(auth.HeaderAccount, string(auth.AccountOf(key)))
		req.Header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(auth.HeaderSignature, sig)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		var e edto.ErrorResponse
		_ = json.NewDecoder(res.Body).Decode(&e)
		return &APIError{Status: res.StatusCode, Kind: e.Error, Msg: e.Message}
	}
	return json.NewDecoder(res.Body).Decode(out)
}
