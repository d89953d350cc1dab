package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/contest-leaderboard/internal/domain"
)

// Message types
const (
	MessageTypeSurfaceUpdate = "leaderboard_update"
	MessageTypeSurfaceDelete = "leaderboard_delete"
	MessageTypeSubscribe     = "subscribe"
	MessageTypeUnsubscribe   = "unsubscribe"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeError         = "error"
)

// Message is a frame sent to viewers
type Message struct {
	Type      string    `json:"type"`
	ChannelID string    `json:"channel_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type subscription struct {
	client    *Client
	channelID string
	add       bool
}

// Hub fans leaderboard surface changes out to the viewers of each channel
type Hub struct {
	// viewers by channel ID
	channels map[string]map[*Client]struct{}
	clients  map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	subs       chan subscription
	broadcast  chan *Message

	mu     sync.RWMutex
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		channels:   make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subs:       make(chan subscription, 64),
		broadcast:  make(chan *Message, 256),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("websocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("viewer connected", "client_id", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for channelID := range client.channels {
					h.removeLocked(client, channelID)
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("viewer disconnected", "client_id", client.id)

		case s := <-h.subs:
			h.mu.Lock()
			if _, ok := h.clients[s.client]; ok {
				if s.add {
					if h.channels[s.channelID] == nil {
						h.channels[s.channelID] = make(map[*Client]struct{})
					}
					h.channels[s.channelID][s.client] = struct{}{}
					s.client.channels[s.channelID] = struct{}{}
				} else {
					h.removeLocked(s.client, s.channelID)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) removeLocked(client *Client, channelID string) {
	delete(client.channels, channelID)
	if viewers, ok := h.channels[channelID]; ok {
		delete(viewers, client)
		if len(viewers) == 0 {
			delete(h.channels, channelID)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

func (h *Hub) deliver(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.channels[msg.ChannelID] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("viewer buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) enqueue(msg *Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "channel_id", msg.ChannelID)
	}
}

// SurfaceUpdated notifies the channel's viewers of a new leaderboard rendering
func (h *Hub) SurfaceUpdated(msg domain.SurfaceMessage) {
	h.enqueue(&Message{
		Type:      MessageTypeSurfaceUpdate,
		ChannelID: msg.ChannelID,
		Data:      msg,
		Timestamp: time.Now(),
	})
}

// SurfaceDeleted notifies the channel's viewers that a leaderboard message was removed
func (h *Hub) SurfaceDeleted(ref domain.SurfaceRef) {
	h.enqueue(&Message{
		Type:      MessageTypeSurfaceDelete,
		ChannelID: ref.ChannelID,
		Data:      ref,
		Timestamp: time.Now(),
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe starts delivering a channel's updates to the client
func (h *Hub) Subscribe(client *Client, channelID string) {
	h.subs <- subscription{client: client, channelID: channelID, add: true}
}

// Unsubscribe stops delivering a channel's updates to the client
func (h *Hub) Unsubscribe(client *Client, channelID string) {
	h.subs <- subscription{client: client, channelID: channelID}
}

// ViewerCount returns the number of viewers of a channel
func (h *Hub) ViewerCount(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channelID])
}

// ConnectionCount returns the number of connected viewers
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
