package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/funecosystem/angel-ai/internal/services"
	"github.com/funecosystem/angel-ai/pkg/types"
)

// Event is the envelope for realtime messages pushed to clients.
type Event struct {
	Type           string         `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Message        *types.Message `json:"message,omitempty"`
	FromSeq        int64          `json:"from_seq,omitempty"`
	Typing         bool           `json:"typing,omitempty"`
	Status         string         `json:"status,omitempty"`
}

// Event types.
const (
	EventMessageCreated        = "message_created"
	EventConversationTruncated = "conversation_truncated"
	EventTyping                = "typing"
)

// subscribeRequest is the only client-to-server message: pick which
// conversation's events to receive.
type subscribeRequest struct {
	Action         string `json:"action"` // "subscribe" or "unsubscribe"
	ConversationID string `json:"conversation_id"`
}

// envelope pairs a serialized event with its conversation for routing.
type envelope struct {
	conversationID string
	data           []byte
}

// WebSocketHub manages WebSocket connections and routes events to the
// clients subscribed to each conversation. It implements
// services.Broadcaster.
type WebSocketHub struct {
	clients    map[clientInterface]bool
	broadcast  chan envelope
	register   chan clientInterface
	unregister chan clientInterface
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc

	auth       *services.AuthService
	authorizer ConversationAuthorizer
}

// ConversationAuthorizer decides whether a user may subscribe to a
// conversation's events. The chat service implements it.
type ConversationAuthorizer interface {
	CanAccess(ctx context.Context, userID, conversationID string) bool
}

// clientInterface allows for both real clients and mock clients.
type clientInterface interface {
	getSendChannel() chan []byte
	subscribedTo(conversationID string) bool
	close()
}

// Client represents a WebSocket connection and its subscriptions.
type Client struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte

	userID string

	mu            sync.RWMutex
	subscriptions map[string]bool
}

func (c *Client) getSendChannel() chan []byte {
	return c.send
}

func (c *Client) subscribedTo(conversationID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[conversationID]
}

func (c *Client) setSubscription(conversationID string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.subscriptions[conversationID] = true
	} else {
		delete(c.subscriptions, conversationID)
	}
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}
}

// NewWebSocketHub creates a hub. auth guards the upgrade endpoint and
// authorizer guards per-conversation subscriptions; a nil authorizer
// allows any subscription.
func NewWebSocketHub(auth *services.AuthService, authorizer ConversationAuthorizer) *WebSocketHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		clients:    make(map[clientInterface]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan clientInterface),
		unregister: make(chan clientInterface),
		ctx:        ctx,
		cancel:     cancel,
		auth:       auth,
		authorizer: authorizer,
	}
}

// Run starts the hub's message processing loop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("WebSocket client connected (total: %d)", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.getSendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("WebSocket client disconnected (total: %d)", count)

		case env := <-h.broadcast:
			// Full Lock because the default branch may delete from the map.
			h.mu.Lock()
			for client := range h.clients {
				if !client.subscribedTo(env.conversationID) {
					continue
				}
				sendChan := client.getSendChannel()
				select {
				case sendChan <- env.data:
				default:
					// Client's send channel is full, disconnect them
					close(sendChan)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			log.Println("WebSocket hub stopping...")
			return
		}
	}
}

// Stop gracefully shuts down the hub.
func (h *WebSocketHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.getSendChannel())
		client.close()
	}
	h.clients = make(map[clientInterface]bool)
	h.mu.Unlock()
}

// Broadcast queues an event for delivery to the conversation's
// subscribers.
func (h *WebSocketHub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("ERROR: Failed to marshal WebSocket event: %v", err)
		return
	}
	select {
	case h.broadcast <- envelope{conversationID: event.ConversationID, data: data}:
	default:
		log.Println("WARNING: WebSocket broadcast channel full, dropping event")
	}
}

// MessageCreated implements services.Broadcaster.
func (h *WebSocketHub) MessageCreated(conversationID string, msg *types.Message) {
	h.Broadcast(Event{Type: EventMessageCreated, ConversationID: conversationID, Message: msg})
}

// ConversationTruncated implements services.Broadcaster.
func (h *WebSocketHub) ConversationTruncated(conversationID string, fromSeq int64) {
	h.Broadcast(Event{Type: EventConversationTruncated, ConversationID: conversationID, FromSeq: fromSeq})
}

// TypingChanged implements services.Broadcaster.
func (h *WebSocketHub) TypingChanged(conversationID string, typing bool, status string) {
	h.Broadcast(Event{Type: EventTyping, ConversationID: conversationID, Typing: typing, Status: status})
}

// Register adds a client to the hub.
func (h *WebSocketHub) Register(client clientInterface) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *WebSocketHub) Unregister(client clientInterface) {
	h.unregister <- client
}

// ServeHTTP handles WebSocket upgrade requests. The session token comes
// from the cookie or a ?token= query parameter, since browsers cannot
// set headers on WebSocket connections.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	user, err := h.auth.CurrentUser(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired session")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("ERROR: WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, 256),
		userID:        user.ID,
		subscriptions: make(map[string]bool),
	}

	h.Register(client)

	go client.writePump()
	go client.readPump()
}

// writePump sends queued events to the WebSocket connection.
func (c *Client) writePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()

		if err != nil {
			log.Printf("ERROR: WebSocket write failed: %v", err)
			return
		}
	}
}

// readPump processes subscribe/unsubscribe requests and detects
// disconnections.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			return
		}

		var req subscribeRequest
		if err := json.Unmarshal(data, &req); err != nil || req.ConversationID == "" {
			continue
		}
		switch req.Action {
		case "subscribe":
			if c.hub.authorizer != nil && !c.hub.authorizer.CanAccess(context.Background(), c.userID, req.ConversationID) {
				continue
			}
			c.setSubscription(req.ConversationID, true)
		case "unsubscribe":
			c.setSubscription(req.ConversationID, false)
		}
	}
}

// MockClient is a mock client for testing.
type MockClient struct {
	SendChan      chan []byte
	Subscriptions map[string]bool
}

func (m *MockClient) getSendChannel() chan []byte {
	return m.SendChan
}

func (m *MockClient) subscribedTo(conversationID string) bool {
	return m.Subscriptions[conversationID]
}

func (m *MockClient) close() {
	// No-op for mock client
}
