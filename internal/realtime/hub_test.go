package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/policyvoice/server/internal/logger"
)

func testLogger() *logger.Logger {
	if testing.Verbose() {
		return logger.New(logger.Config{Level: slog.LevelDebug})
	}
	return logger.New(logger.Config{Level: slog.LevelError})
}

// dialTestSubscriber runs a server that upgrades one connection and registers
// it with the hub, and returns both ends of that connection.
func dialTestSubscriber(t *testing.T, hub *Hub, conversationID, userID string) (server, client *websocket.Conn) {
	t.Helper()

	serverConns := make(chan *websocket.Conn, 1)
	done := make(chan struct{})
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		hub.Register(conversationID, userID, conn)
		serverConns <- conn
		<-done
	}))

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial failed: %v", err)
	}

	server = <-serverConns

	t.Cleanup(func() {
		hub.Unregister(server)
		client.Close()
		server.Close()
		close(done)
		srv.Close()
	})

	return server, client
}

func TestHubTracksUserConnections(t *testing.T) {
	hub := NewHub(testLogger())

	server, _ := dialTestSubscriber(t, hub, "conv-1", "user-1")
	if got := hub.UserConnectionCount("user-1"); got != 1 {
		t.Errorf("expected 1 connection, got %d", got)
	}
	if got := hub.UserConnectionCount("user-2"); got != 0 {
		t.Errorf("expected 0 connections for other user, got %d", got)
	}

	hub.Unregister(server)
	if got := hub.UserConnectionCount("user-1"); got != 0 {
		t.Errorf("expected 0 connections after unregister, got %d", got)
	}
}

func TestHubBroadcastDeliversEvent(t *testing.T) {
	hub := NewHub(testLogger())
	_, client := dialTestSubscriber(t, hub, "conv-1", "user-1")

	want := Event{Type: EventTypeStatus, ConversationID: "conv-1", Status: "listening"}
	if err := hub.Broadcast("conv-1", want); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var got Event
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.Type != want.Type || got.ConversationID != want.ConversationID || got.Status != want.Status {
		t.Errorf("received %+v, want %+v", got, want)
	}
}

func TestHubBroadcastWithoutSubscribers(t *testing.T) {
	hub := NewHub(testLogger())
	if err := hub.Broadcast("conv-none", Event{Type: EventTypeStatus}); err != nil {
		t.Errorf("Broadcast() error = %v", err)
	}
}

func TestHubSerializesBroadcastsAndPings(t *testing.T) {
	hub := NewHub(testLogger())
	server, client := dialTestSubscriber(t, hub, "conv-1", "user-1")

	const events = 50

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < events; i++ {
			hub.Broadcast("conv-1", Event{Type: EventTypeAssistantTranscript, ConversationID: "conv-1"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < events; i++ {
			hub.Ping(server)
		}
	}()

	// ReadMessage also consumes the interleaved ping frames.
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	for received := 0; received < events; received++ {
		if _, _, err := client.ReadMessage(); err != nil {
			t.Fatalf("read failed after %d events: %v", received, err)
		}
	}

	wg.Wait()
}
