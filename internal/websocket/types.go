package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeRulesReloaded is sent after a rule set was swapped in
	EventTypeRulesReloaded EventType = "rules_reloaded"
	// EventTypeReloadFailed is sent when a reload was rejected
	EventTypeReloadFailed EventType = "reload_failed"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// ReloadEvent describes a reload attempt
type ReloadEvent struct {
	Source   string `json:"source"`
	Trigger  string `json:"trigger"`
	Checksum string `json:"checksum,omitempty"`
	Rules    int    `json:"rules"`
	Error    string `json:"error,omitempty"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	ActiveRules      int    `json:"active_rules"`
	RulesChecksum    string `json:"rules_checksum"`
	TotalRequests    int64  `json:"total_requests"`
	TotalRedactions  int64  `json:"total_redactions"`
	ChangedTexts     int64  `json:"changed_texts"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest restricts the event types a client receives
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	mu           sync.Mutex
	subscription *SubscriptionRequest
}

// Subscribe replaces the client's event filter; nil receives everything
func (c *Client) Subscribe(sub *SubscriptionRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscription = sub
}

// Wants reports whether the client's subscription includes t
func (c *Client) Wants(t EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscription == nil {
		return true
	}
	for _, eventType := range c.subscription.Events {
		if eventType == t {
			return true
		}
	}
	return false
}
