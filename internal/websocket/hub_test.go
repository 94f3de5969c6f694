package websocket

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/log-redactor/internal/reload"
)

func startHub(t *testing.T, cfg *HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, user, pass string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	if user != "" {
		token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		header.Set("Authorization", "Basic "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func waitForClients(t *testing.T, hub *Hub, n int64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if hub.GetStats().ActiveConnections == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients", n)
}

func allEvents() *HubConfig {
	return &HubConfig{
		BroadcastReloads:     true,
		BroadcastSystem:      true,
		BroadcastConnections: true,
		Username:             "admin",
		Password:             "s3cret",
	}
}

func TestHandleWebSocketRequiresAuth(t *testing.T) {
	_, srv := startHub(t, allEvents())

	tests := []struct {
		name string
		user string
		pass string
	}{
		{"no credentials", "", ""},
		{"wrong password", "admin", "nope"},
		{"wrong user", "root", "s3cret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := dial(t, srv, tt.user, tt.pass)
			if err == nil {
				conn.Close()
				t.Fatal("dial succeeded without valid credentials")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("response = %v, want 401", resp)
			}
		})
	}
}

func TestReloadEventsReachClients(t *testing.T) {
	hub, srv := startHub(t, allEvents())

	conn, _, err := dial(t, srv, "admin", "s3cret")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	listener := hub.ReloadListener()
	listener(context.Background(), reload.Event{
		Source:   "rules.json",
		Trigger:  reload.TriggerWatch,
		Checksum: "abc",
		Rules:    4,
		Status:   reload.StatusOK,
		At:       time.Now(),
	})
	listener(context.Background(), reload.Event{
		Source: "rules.json",
		Status: reload.StatusFailed,
		Error:  "bad pattern",
		At:     time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var got struct {
		Type EventType   `json:"type"`
		Data ReloadEvent `json:"data"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != EventTypeRulesReloaded || got.Data.Rules != 4 || got.Data.Checksum != "abc" {
		t.Errorf("first event = %+v", got)
	}

	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != EventTypeReloadFailed || got.Data.Error != "bad pattern" {
		t.Errorf("second event = %+v", got)
	}
}

func TestDisabledEventsAreDropped(t *testing.T) {
	cfg := allEvents()
	cfg.BroadcastReloads = false
	hub, srv := startHub(t, cfg)

	conn, _, err := dial(t, srv, "admin", "s3cret")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.ReloadListener()(context.Background(), reload.Event{Status: reload.StatusOK})
	hub.BroadcastEvent(Event{Type: EventTypeSystemStatus, Data: SystemStatusEvent{Status: "healthy"}})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != EventTypeSystemStatus {
		t.Errorf("received %q, want only system_status", got.Type)
	}
}

func TestSubscriptionFiltersEvents(t *testing.T) {
	hub, srv := startHub(t, allEvents())

	conn, _, err := dial(t, srv, "admin", "s3cret")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	sub := ClientMessage{Type: "subscribe", Data: map[string]any{"events": []string{"reload_failed"}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write: %v", err)
	}
	// a ping round trip guarantees the subscription was processed
	if err := conn.WriteJSON(ClientMessage{Type: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var pong Event
	if err := conn.ReadJSON(&pong); err != nil || pong.Type != EventTypePong {
		t.Fatalf("pong = %+v, %v", pong, err)
	}

	hub.ReloadListener()(context.Background(), reload.Event{Status: reload.StatusOK})
	hub.ReloadListener()(context.Background(), reload.Event{Status: reload.StatusFailed, Error: "x"})

	var got Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != EventTypeReloadFailed {
		t.Errorf("received %q, want reload_failed", got.Type)
	}
}

func TestHubStatsAndDisconnect(t *testing.T) {
	hub, srv := startHub(t, allEvents())

	first, _, err := dial(t, srv, "admin", "s3cret")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	waitForClients(t, hub, 1)

	second, _, err := dial(t, srv, "admin", "s3cret")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForClients(t, hub, 2)

	first.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got struct {
		Type EventType       `json:"type"`
		Data ConnectionEvent `json:"data"`
	}
	if err := first.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != EventTypeConnection || got.Data.Action != "connected" {
		t.Errorf("event = %+v", got)
	}

	second.Close()
	waitForClients(t, hub, 1)

	if err := first.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Data.Action != "disconnected" {
		t.Errorf("event = %+v", got)
	}

	stats := hub.GetStats()
	if stats.TotalConnections != 2 {
		t.Errorf("TotalConnections = %d, want 2", stats.TotalConnections)
	}
}
