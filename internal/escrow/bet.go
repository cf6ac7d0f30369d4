package escrow

import "time"

const (
	// MaxQuestionBytes é a capacidade fixa reservada para o texto da pergunta
	MaxQuestionBytes = 256
	// DefaultStakeCapacity é o número de stakes reservado por aposta quando não configurado
	DefaultStakeCapacity = 10
	// MaxStakeCapacity é o limite superior aceito pelo alocador
	MaxStakeCapacity = 64

	vaultPrefix = "vault:"
)

// AccountID identifica uma conta (usuário ou vault)
type AccountID string

// VaultAccount retorna a conta de custódia associada a uma aposta
func VaultAccount(betID string) AccountID { return AccountID(vaultPrefix + betID) }

// Stake é um depósito de um participante apoiando um dos dois resultados
type Stake struct {
	Staker   AccountID
	Amount   uint64
	Choice   bool
	PlacedAt time.Time
}

// Bet é o registro de uma pergunta sim/não com expiração.
// Outcome só tem significado quando IsResolved == true.
type Bet struct {
	ID           string
	Creator      AccountID
	Question     string
	ExpiryTime   time.Time
	TotalStake   uint64
	IsResolved   bool
	Outcome      bool
	Denomination string
	Capacity     int
	Vault        AccountID
	Stakes       []Stake
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// Clone devolve uma cópia profunda; o store nunca entrega o registro original
func (b *Bet) Clone() *Bet {
	if b == nil {
		return nil
	}
	c := *b
	capacity := b.Capacity
	if capacity < len(b.Stakes) {
		capacity = len(b.Stakes)
	}
	c.Stakes = make([]Stake, len(b.Stakes), capacity)
	copy(c.Stakes, b.Stakes)
	if b.ResolvedAt != nil {
		t := *b.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// TotalWinningStake soma os valores dos stakes que escolheram outcome
func (b *Bet) TotalWinningStake(outcome bool) uint64 {
	var sum uint64
	for _, s := range b.Stakes {
		if s.Choice == outcome {
			sum += s.Amount
		}
	}
	return sum
}

// Expired indica se o prazo para stakes já passou em now
func (b *Bet) Expired(now time.Time) bool { return !now.Before(b.ExpiryTime) }
