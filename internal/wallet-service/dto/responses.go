package dto

import "time"

type AccountResponse struct {
	Account      string `json:"account"`
	AccountID    string `json:"accountId"`
	Denomination string `json:"denomination"`
	Kind         string `json:"kind"`
	BetID        string `json:"betId,omitempty"`
	Balance      string `json:"balance"`
}

type LedgerEntryResponse struct {
	ID           int64     `json:"id"`
	Operation    string    `json:"operation"`
	Amount       string    `json:"amount"`
	Counterparty string    `json:"counterparty,omitempty"`
	ExternalRef  string    `json:"external_ref,omitempty"`
	RelatedBetID string    `json:"related_bet_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
