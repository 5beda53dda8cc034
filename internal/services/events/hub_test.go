package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/fundwatch/internal/models"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastsSnapshot(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(httptestHandler(hub))
	defer srv.Close()

	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	hub.PublishSnapshot(&models.Snapshot{CycleID: "c1", Kind: models.CycleEstimate, GeneratedAt: time.Now()})

	var ev Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, TypeSnapshot, ev.Type)
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, "c1", ev.Snapshot.CycleID)
}

func TestHub_ReplaysLatestToNewClient(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(httptestHandler(hub))
	defer srv.Close()

	first := dial(t, srv)
	waitForClients(t, hub, 1)
	hub.PublishSnapshot(&models.Snapshot{CycleID: "c2", GeneratedAt: time.Now()})

	var ev Event
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, first.ReadJSON(&ev))

	second := dial(t, srv)
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, second.ReadJSON(&ev))
	assert.Equal(t, "c2", ev.Snapshot.CycleID)
}

func TestHub_Notice(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(httptestHandler(hub))
	defer srv.Close()

	conn := dial(t, srv)
	waitForClients(t, hub, 1)
	hub.PublishNotice(models.Notice{Level: "warn", Message: "no estimates fetched"})

	var ev Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, TypeNotice, ev.Type)
	assert.Equal(t, "no estimates fetched", ev.Notice.Message)
}

func httptestHandler(h *Hub) http.HandlerFunc {
	return h.ServeWS
}
