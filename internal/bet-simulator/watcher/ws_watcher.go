package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/escrow-service/ws"
	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

// Watcher acompanha o feed WebSocket do escrow-service para um conjunto de apostas.
// Em caso de desconexão reconecta e refaz as inscrições.
type Watcher struct {
	URL      string        // ex.: ws://localhost:8083/ws
	Log      *zap.Logger
	Retry    time.Duration // espera antes de reconectar
	OnUpdate func(betID string, ev events.BetEvent)

	mu   sync.Mutex
	conn *websocket.Conn
	bets map[string]struct{}
}

// Watch inscreve betID; vale também para reconexões futuras
func (w *Watcher) Watch(betID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bets == nil {
		w.bets = make(map[string]struct{})
	}
	w.bets[betID] = struct{}{}
	if w.conn == nil {
		return nil
	}
	return w.conn.WriteJSON(ws.ClientMsg{Type: "subscribe", BetID: betID})
}

// Forget cancela a inscrição de betID
func (w *Watcher) Forget(betID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.bets, betID)
	if w.conn == nil {
		return nil
	}
	return w.conn.WriteJSON(ws.ClientMsg{Type: "unsubscribe", BetID: betID})
}

// Start mantém a conexão até o contexto ser cancelado
func (w *Watcher) Start(ctx context.Context) {
	for {
		if err := w.connectAndListen(ctx); err != nil {
			w.Log.Warn("ws connection closed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			w.Log.Info("context canceled, stopping ws watcher")
			return
		case <-time.After(w.Retry):
		}
	}
}

func (w *Watcher) connectAndListen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return err
	}
	defer w.detach(conn)
	if err := w.attach(conn); err != nil {
		return err
	}
	w.Log.Info("connected to escrow ws", zap.String("url", w.URL))

	// fecha a conexão no cancelamento para destravar ReadMessage
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		var upd ws.BetUpdate
		if err := json.Unmarshal(message, &upd); err != nil || upd.BetID == "" {
			continue // pong e mensagens de controle
		}
		var ev events.BetEvent
		if err := json.Unmarshal(upd.Payload, &ev); err != nil {
			w.Log.Warn("invalid bet update", zap.String("betId", upd.BetID), zap.Error(err))
			continue
		}
		if w.OnUpdate != nil {
			w.OnUpdate(upd.BetID, ev)
		}
	}
}

func (w *Watcher) attach(conn *websocket.Conn) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id := range w.bets {
		if err := conn.WriteJSON(ws.ClientMsg{Type: "subscribe", BetID: id}); err != nil {
			_ = conn.Close()
			return fmt.Errorf("resubscribe %s: %w", id, err)
		}
	}
	w.conn = conn
	return nil
}

func (w *Watcher) detach(conn *websocket.Conn) {
	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	w.mu.Unlock()
	_ = conn.Close()
}
