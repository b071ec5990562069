package service_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coinfolio/tax-engine/internal/service"
)

func newHubServer(t *testing.T) (*service.RunHub, *httptest.Server) {
	t.Helper()
	hub := service.NewRunHub()
	go hub.Run()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	// Registration goes through the hub's event loop.
	time.Sleep(50 * time.Millisecond)
	return conn
}

func TestRunHub_BroadcastReachesClient(t *testing.T) {
	hub, srv := newHubServer(t)

	conn := dialHub(t, srv)
	defer conn.Close()

	hub.Broadcast(service.RunEvent{Type: "run_started", RunID: "abc", Start: 1, End: 2})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}

	var ev service.RunEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.Type != "run_started" || ev.RunID != "abc" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestRunHub_BroadcastSurvivesDisconnectedClient(t *testing.T) {
	hub, srv := newHubServer(t)

	dead := dialHub(t, srv)
	alive := dialHub(t, srv)
	defer alive.Close()

	// Tear one client down, then broadcast repeatedly: the write failure
	// path drops the dead connection while ping goroutines still consult
	// the client set.
	dead.Close()
	for i := 0; i < 5; i++ {
		hub.Broadcast(service.RunEvent{Type: "run_completed", RunID: "xyz"})
	}

	alive.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := alive.ReadMessage(); err != nil {
		t.Fatalf("live client should still receive broadcasts: %v", err)
	}
}
