// Package auth autentica chamadas ao escrow-service por assinatura secp256k1.
//
// O cliente assina, com EIP-191 (personal_sign), a mensagem
//
//	"<METHOD> <PATH>\n<unix timestamp>\n<keccak256(body) em hex>"
//
// e envia X-Account, X-Timestamp e X-Signature. A conta recuperada da
// assinatura precisa bater com X-Account. Uma mesma mensagem assinada só é
// aceita uma vez em métodos que alteram estado.
package auth

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
)

const (
	HeaderAccount   = "X-Account"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"

	maxBody = 1 << 20
)

var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrStaleTimestamp     = errors.New("auth: timestamp outside allowed skew")
	ErrBadSignature       = errors.New("auth: signature does not match account")
	ErrReplayed           = errors.New("auth: signed request already used")
	ErrBodyTooLarge       = errors.New("auth: request body too large")

	errReplayUnavailable = errors.New("auth: replay check unavailable")
)

type ctxKey struct{}

// WithAccount grava a conta autenticada no contexto
func WithAccount(ctx context.Context, a escrow.AccountID) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// Account retorna a conta autenticada da requisição
func Account(ctx context.Context) (escrow.AccountID, bool) {
	a, ok := ctx.Value(ctxKey{}).(escrow.AccountID)
	return a, ok && a != ""
}

// Message monta o texto assinado
func Message(method, path string, ts int64, body []byte) []byte {
	return []byte(fmt.Sprintf("%s %s\n%d\n%s", strings.ToUpper(method), path, ts, hexutil.Encode(ethcrypto.Keccak256(body))))
}

// textHash aplica o prefixo EIP-191 ("\x19Ethereum Signed Message:\n" + len)
func textHash(msg []byte) []byte {
	return ethcrypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))), msg)
}

// Sign produz X-Signature para a requisição; usado por clientes e testes
func Sign(key *ecdsa.PrivateKey, method, path string, ts int64, body []byte) (string, error) {
	sig, err := ethcrypto.Sign(textHash(Message(method, path, ts, body)), key)
	if err != nil {
		return "", fmt.Errorf("auth: sign: %w", err)
	}
	sig[ethcrypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// AccountOf devolve o AccountID canônico de uma chave
func AccountOf(key *ecdsa.PrivateKey) escrow.AccountID {
	return escrow.AccountID(ethcrypto.PubkeyToAddress(key.PublicKey).Hex())
}

// Recover retorna a conta que assinou a mensagem
func Recover(method, path string, ts int64, body []byte, sigHex string) (escrow.AccountID, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != ethcrypto.SignatureLength {
		return "", ErrBadSignature
	}
	// aceita v em {0,1} ou {27,28}
	if sig[ethcrypto.RecoveryIDOffset] >= 27 {
		sig[ethcrypto.RecoveryIDOffset] -= 27
	}
	pub, err := ethcrypto.SigToPub(textHash(Message(method, path, ts, body)), sig)
	if err != nil {
		return "", ErrBadSignature
	}
	return escrow.AccountID(ethcrypto.PubkeyToAddress(*pub).Hex()), nil
}

// Verifier é o middleware de autenticação
type Verifier struct {
	MaxSkew  time.Duration
	Disabled bool // confia em X-Account; só para ambiente local
	Now      func() time.Time
	Replay   ReplayGuard // nil desliga a checagem de reuso
}

func NewVerifier(maxSkew time.Duration, disabled bool) *Verifier {
	return &Verifier{MaxSkew: maxSkew, Disabled: disabled, Now: time.Now, Replay: NewMemoryReplay()}
}

// Middleware rejeita com 401 qualquer requisição sem assinatura válida
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := v.authenticate(w, r)
		if err != nil {
			reject(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
	})
}

func (v *Verifier) authenticate(w http.ResponseWriter, r *http.Request) (escrow.AccountID, error) {
	claimed := strings.TrimSpace(r.Header.Get(HeaderAccount))
	if claimed == "" {
		return "", ErrMissingCredentials
	}
	if v.Disabled {
		return Canonical(claimed), nil
	}
	if !common.IsHexAddress(claimed) {
		return "", ErrBadSignature
	}

	tsRaw, sig := r.Header.Get(HeaderTimestamp), r.Header.Get(HeaderSignature)
	if tsRaw == "" || sig == "" {
		return "", ErrMissingCredentials
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return "", ErrStaleTimestamp
	}
	if skew := v.Now().Sub(time.Unix(ts, 0)); skew > v.MaxSkew || skew < -v.MaxSkew {
		return "", ErrStaleTimestamp
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", ErrBodyTooLarge
		}
		return "", fmt.Errorf("auth: read body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	signer, err := Recover(r.Method, r.URL.Path, ts, body, sig)
	if err != nil {
		return "", err
	}
	if signer != Canonical(claimed) {
		return "", ErrBadSignature
	}
	if err := v.claim(r, signer, ts, body); err != nil {
		return "", err
	}
	return signer, nil
}

// claim registra a mensagem assinada. A chave vem da conta e da mensagem,
// não dos bytes da assinatura, que admitem mais de uma codificação válida.
func (v *Verifier) claim(r *http.Request, signer escrow.AccountID, ts int64, body []byte) error {
	if v.Replay == nil {
		return nil
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return nil
	}
	key := hexutil.Encode(ethcrypto.Keccak256([]byte(signer), Message(r.Method, r.URL.Path, ts, body)))
	// a mensagem vale por MaxSkew antes e depois de ts
	ttl := max(2*v.MaxSkew, time.Second)
	first, err := v.Replay.Claim(r.Context(), key, ttl)
	if err != nil {
		return fmt.Errorf("%w: %w", errReplayUnavailable, err)
	}
	if !first {
		return ErrReplayed
	}
	return nil
}

// Canonical normaliza endereços hex para a forma com checksum (EIP-55).
// Outros identificadores passam inalterados.
func Canonical(s string) escrow.AccountID {
	if common.IsHexAddress(s) {
		return escrow.AccountID(common.HexToAddress(s).Hex())
	}
	return escrow.AccountID(s)
}

func reject(w http.ResponseWriter, err error) {
	status, code := http.StatusUnauthorized, "unauthenticated"
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, errReplayUnavailable):
		status, code = http.StatusServiceUnavailable, "auth_unavailable"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": err.Error()})
}
