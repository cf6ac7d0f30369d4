package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubDeliversOnlyToSubscribers(t *testing.T) {
	hub := NewHub(zap.NewNop(), func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	watcher := dial(t, srv)
	other := dial(t, srv)
	if err := watcher.WriteJSON(ClientMsg{Type: "subscribe", BetID: "b1"}); err != nil {
		t.Fatal(err)
	}
	if err := other.WriteJSON(ClientMsg{Type: "subscribe", BetID: "b2"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return hub.Subscribers("b1") == 1 && hub.Subscribers("b2") == 1 })

	hub.Broadcast(BetUpdate{BetID: "b1", Payload: json.RawMessage(`{"type":"stake_placed"}`)})

	_ = watcher.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got BetUpdate
	if err := watcher.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.BetID != "b1" || string(got.Payload) != `{"type":"stake_placed"}` {
		t.Errorf("update = %+v", got)
	}

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("client subscribed to b2 received a b1 update")
	}
}

func TestHubPingAndDisconnect(t *testing.T) {
	hub := NewHub(zap.NewNop(), func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	_ = conn.WriteJSON(ClientMsg{Type: "subscribe", BetID: "b1"})
	_ = conn.WriteJSON(ClientMsg{Type: "ping"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong map[string]string
	if err := conn.ReadJSON(&pong); err != nil || pong["type"] != "pong" {
		t.Fatalf("pong = %v, err %v", pong, err)
	}
	waitFor(t, func() bool { return hub.Subscribers("b1") == 1 })

	_ = conn.Close()
	waitFor(t, func() bool { return hub.Subscribers("b1") == 0 })
}
