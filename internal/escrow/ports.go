package escrow

import (
	"context"
	"sync"
	"time"
)

// Clock é a fonte de tempo usada em todas as comparações com ExpiryTime
type Clock interface {
	Now() time.Time
}

// SystemClock usa o relógio do sistema em UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// MonotonicClock garante que Now nunca retorne um instante anterior a um já devolvido
type MonotonicClock struct {
	mu   sync.Mutex
	src  Clock
	last time.Time
}

func NewMonotonicClock(src Clock) *MonotonicClock { return &MonotonicClock{src: src} }

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.src.Now()
	if t.Before(c.last) {
		return c.last
	}
	c.last = t
	return t
}

// Authority é quem autoriza uma transferência: o dono da conta de origem
// ou a capacidade de assinatura de escrow vinculada a uma aposta.
// A capacidade de escrow só pode ser criada dentro deste pacote.
type Authority struct {
	signer AccountID
	betID  string
}

// SignerAuthority autoriza em nome do titular da conta
func SignerAuthority(a AccountID) Authority { return Authority{signer: a} }

func escrowAuthority(betID string) Authority { return Authority{betID: betID} }

// Signer retorna a conta signatária, se houver
func (a Authority) Signer() (AccountID, bool) { return a.signer, a.signer != "" }

// EscrowBet retorna o id da aposta cuja capacidade de escrow autoriza a transferência
func (a Authority) EscrowBet() (string, bool) { return a.betID, a.betID != "" }

func (a Authority) String() string {
	if a.betID != "" {
		return "escrow:" + a.betID
	}
	return string(a.signer)
}

// Transfer descreve uma movimentação de valor entre duas contas
type Transfer struct {
	From         AccountID
	To           AccountID
	Amount       uint64
	Denomination string
	Authority    Authority
}

// ValueTransferAdapter move valor entre contas; cada chamada é tudo-ou-nada
type ValueTransferAdapter interface {
	Transfer(ctx context.Context, t Transfer) error
}

// UpdateFunc recebe uma cópia travada da aposta e um adapter de transferência
// vinculado à mesma unidade de trabalho. Retornar erro descarta tudo.
type UpdateFunc func(ctx context.Context, bet *Bet, xfer ValueTransferAdapter) error

// ListFilter restringe a listagem de apostas
type ListFilter struct {
	Creator  AccountID
	Resolved *bool
	Limit    int
}

// Store persiste apostas e serializa mutações por aposta.
// CreateBet cria o registro e o vault de forma atômica.
// UpdateBet executa fn com exclusão mútua no nível do registro; se fn retornar nil,
// a aposta e todas as transferências feitas via xfer são confirmadas juntas.
type Store interface {
	CreateBet(ctx context.Context, bet *Bet) error
	GetBet(ctx context.Context, id string) (*Bet, error)
	ListBets(ctx context.Context, f ListFilter) ([]*Bet, error)
	UpdateBet(ctx context.Context, id string, fn UpdateFunc) error
}

// Hooks são callbacks opcionais (métricas)
type Hooks struct {
	OnCreated  func(b *Bet)
	OnStaked   func(b *Bet, s Stake)
	OnResolved func(r *Resolution)
	OnRejected func(op, kind string)
}
