package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	"github.com/radieske/bet-escrow-poc/internal/shared/db"
	"github.com/radieske/bet-escrow-poc/internal/shared/db/dbtest"
)

const usdc = "USDC"

func TestDepositAndLedger(t *testing.T) {
	ctx := context.Background()
	p := NewPostgres(dbtest.Open(t))

	if _, err := p.Deposit(ctx, "alice", usdc, 100, "dep-1"); err != nil {
		t.Fatal(err)
	}
	// mesmo externalRef não credita de novo
	acc, err := p.Deposit(ctx, "alice", usdc, 100, "dep-1")
	if err != nil {
		t.Fatal(err)
	}
	if acc.Balance != 100 || acc.Kind != KindUser || acc.BetID != "" {
		t.Fatalf("account = %+v", acc)
	}
	if _, err := p.Deposit(ctx, "alice", usdc, 50, "dep-2"); err != nil {
		t.Fatal(err)
	}

	got, err := p.GetAccount(ctx, "alice", usdc)
	if err != nil || got.Balance != 150 {
		t.Fatalf("GetAccount = %+v, %v", got, err)
	}
	entries, err := p.Ledger(ctx, "alice", usdc, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].ExternalRef != "dep-2" || entries[0].Operation != "CREDIT" {
		t.Errorf("ledger = %+v", entries)
	}

	if _, err := p.GetAccount(ctx, "alice", "SOL"); !errors.Is(err, ErrNotFound) {
		t.Errorf("other denomination: %v", err)
	}
	if _, err := p.GetOrCreateAccount(ctx, "vault:x", usdc); !errors.Is(err, ErrInvalidAccount) {
		t.Errorf("vault owner: %v", err)
	}
}

func TestTransferTx(t *testing.T) {
	vaultOf := func(betID string) escrow.AccountID { return escrow.VaultAccount(betID) }
	tests := []struct {
		name    string
		xfer    func(betID string) escrow.Transfer
		wantErr error
	}{
		{"owner signs stake", func(b string) escrow.Transfer {
			return escrow.Transfer{From: "alice", To: vaultOf(b), Amount: 40, Denomination: usdc, Authority: escrow.SignerAuthority("alice")}
		}, nil},
		{"someone else signs", func(b string) escrow.Transfer {
			return escrow.Transfer{From: "alice", To: vaultOf(b), Amount: 40, Denomination: usdc, Authority: escrow.SignerAuthority("bob")}
		}, ErrUnauthorizedTransfer},
		{"insufficient funds", func(b string) escrow.Transfer {
			return escrow.Transfer{From: "alice", To: vaultOf(b), Amount: 101, Denomination: usdc, Authority: escrow.SignerAuthority("alice")}
		}, ErrInsufficientFunds},
		{"user cannot drain vault", func(b string) escrow.Transfer {
			return escrow.Transfer{From: vaultOf(b), To: "alice", Amount: 1, Denomination: usdc, Authority: escrow.SignerAuthority(vaultOf(b))}
		}, ErrUnauthorizedTransfer},
		{"wrong denomination", func(b string) escrow.Transfer {
			return escrow.Transfer{From: "alice", To: vaultOf(b), Amount: 1, Denomination: "SOL", Authority: escrow.SignerAuthority("alice")}
		}, ErrDenominationMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			conn := dbtest.Open(t)
			p := NewPostgres(conn)
			betID := uuid.NewString()

			if _, err := p.Deposit(ctx, "alice", usdc, 100, ""); err != nil {
				t.Fatal(err)
			}
			if err := db.WithTx(ctx, conn, func(tx *sql.Tx) error {
				return p.CreateVaultTx(ctx, tx, betID, usdc)
			}); err != nil {
				t.Fatal(err)
			}

			err := db.WithTx(ctx, conn, func(tx *sql.Tx) error {
				return p.Adapter(tx).Transfer(ctx, tt.xfer(betID))
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}

			alice, _ := p.GetAccount(ctx, "alice", usdc)
			vault, err := p.GetAccount(ctx, string(vaultOf(betID)), usdc)
			if err != nil {
				t.Fatal(err)
			}
			if vault.Kind != KindVault || vault.BetID != betID {
				t.Errorf("vault = %+v", vault)
			}
			if tt.wantErr != nil {
				if alice.Balance != 100 || vault.Balance != 0 {
					t.Errorf("balances changed: alice=%d vault=%d", alice.Balance, vault.Balance)
				}
				return
			}
			if alice.Balance != 60 || vault.Balance != 40 {
				t.Errorf("balances: alice=%d vault=%d", alice.Balance, vault.Balance)
			}
			entries, err := p.Ledger(ctx, "alice", usdc, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 2 || entries[0].Operation != "DEBIT" || entries[0].RelatedBetID != betID {
				t.Errorf("ledger = %+v", entries)
			}
		})
	}
}
