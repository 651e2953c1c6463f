package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paw-chain/poolcore/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("events-test", "error")
}

func setupTestHub() *Hub {
	return NewHub(testLogger())
}

func setupTestServer(t *testing.T, hub *Hub) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		client := NewClient(hub, conn, testLogger())
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	})

	return httptest.NewServer(handler)
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func TestHub_ClientLifecycle(t *testing.T) {
	hub := setupTestHub()
	go hub.Run()
	defer hub.Stop()

	server := setupTestServer(t, hub)
	defer server.Close()

	conn := dial(t, server)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	conn.Close()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_PublishReachesAllClients(t *testing.T) {
	hub := setupTestHub()
	go hub.Run()
	defer hub.Stop()

	server := setupTestServer(t, hub)
	defer server.Close()

	first := dial(t, server)
	defer first.Close()
	second := dial(t, server)
	defer second.Close()

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 2, hub.ClientCount())

	hub.Publish("swap", map[string]string{"pair_id": "upaw-uatom"})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var env Envelope
		require.NoError(t, json.Unmarshal(payload, &env))
		assert.Equal(t, "swap", env.Type)
	}
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	hub := setupTestHub()
	go hub.Run()

	server := setupTestServer(t, hub)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	time.Sleep(100 * time.Millisecond)

	hub.Stop()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := setupTestHub()
	go hub.Run()
	defer hub.Stop()

	// Must not block or panic with nobody listening.
	hub.Publish("deposit", map[string]int{"n": 1})
}
