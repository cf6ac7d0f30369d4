package ws

import "encoding/json"

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | unsubscribe | ping
// BetID: obrigatório para subscribe/unsubscribe
type ClientMsg struct {
	Type  string `json:"type"`  // subscribe | unsubscribe | ping
	BetID string `json:"betId"` // requerido em subscribe/unsubscribe
}

// BetUpdate é o que o worker publica no Redis e o hub repassa aos inscritos
type BetUpdate struct {
	BetID   string          `json:"betId"`
	Payload json.RawMessage `json:"payload"`
}
