package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mahaj/chatstra/pkg/auth"
	"github.com/mahaj/chatstra/pkg/delivery"
	"github.com/mahaj/chatstra/pkg/group"
	"github.com/mahaj/chatstra/pkg/model"
	"github.com/mahaj/chatstra/pkg/status"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// Envelope is the wire frame in both directions: an event name plus its
// payload.
type Envelope struct {
	Event model.EventType `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outEnvelope struct {
	Event model.EventType `json:"event"`
	Data  any             `json:"data"`
}

// Client is a middleman between the websocket connection and the delivery
// core. It implements transport.Handle, so the session registry hands it
// straight to the router and presence tracker.
type Client struct {
	hub *Hub

	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	// Guards send against emits racing the hub closing the channel.
	mu     sync.Mutex
	closed bool

	key    string
	userID string
}

func (c *Client) Key() string { return c.key }

// Emit marshals the event into an envelope and hands it to the write pump. A
// client that cannot keep up gets frames dropped rather than stalling
// delivery to everyone else. Emitting to a closed client reports an error;
// the registry has already forgotten the handle by then.
func (c *Client) Emit(event model.EventType, payload any) error {
	b, err := json.Marshal(outEnvelope{Event: event, Data: payload})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- b:
		return nil
	default:
		return errors.New("send buffer full, frame dropped")
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

type sendMessageData struct {
	Receiver string `json:"receiver,omitempty"`
	GroupID  string `json:"group_id,omitempty"`
	Content  string `json:"content"`
}

type ackData struct {
	ID int64 `json:"id"`
}

// readPump pumps frames from the websocket connection into the core.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("read error for %s: %v", c.userID, err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("malformed frame from %s: %v", c.userID, err)
			continue
		}
		c.dispatch(&env)
	}
}

func (c *Client) dispatch(env *Envelope) {
	ctx := context.Background()

	switch env.Event {
	case model.EventSendMessage:
		var d sendMessageData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.Emit(model.EventSendFailed, model.SendFailure{Reason: "malformed sendMessage payload"})
			return
		}
		c.handleSend(ctx, d)

	case model.EventTyping, model.EventStopTyping:
		var d model.TypingPayload
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return
		}
		if err := c.hub.tracker.SetTyping(ctx, c.userID, d.Receiver, d.GroupID, env.Event == model.EventTyping); err != nil {
			log.Printf("typing signal from %s: %v", c.userID, err)
		}

	case model.EventMessageDelivered:
		var d ackData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return
		}
		if err := c.hub.status.MarkDelivered(ctx, d.ID); err != nil && !errors.Is(err, status.ErrPersistWarning) {
			log.Printf("delivered ack from %s for %d: %v", c.userID, d.ID, err)
		}

	case model.EventMessageRead:
		var d ackData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return
		}
		if err := c.hub.status.MarkRead(ctx, d.ID); err != nil && !errors.Is(err, status.ErrPersistWarning) {
			log.Printf("read ack from %s for %d: %v", c.userID, d.ID, err)
		}

	default:
		log.Printf("unknown event %q from %s", env.Event, c.userID)
	}
}

// handleSend routes one message and always answers the sender: messageSent
// with the resulting status, or sendFailed with an explicit reason.
func (c *Client) handleSend(ctx context.Context, d sendMessageData) {
	msg, err := c.hub.router.Route(ctx, delivery.SendRequest{
		Sender:   c.userID,
		Receiver: d.Receiver,
		GroupID:  d.GroupID,
		Content:  d.Content,
	})
	if err != nil {
		reason := "delivery failed"
		switch {
		case errors.Is(err, delivery.ErrUnknownRecipient):
			reason = "unknown recipient"
		case errors.Is(err, group.ErrUnknownGroup):
			reason = "unknown group"
		case errors.Is(err, delivery.ErrPersist):
			reason = "message not persisted"
		}
		log.Printf("route from %s failed: %v", c.userID, err)
		c.Emit(model.EventSendFailed, model.SendFailure{Reason: reason})
		return
	}

	c.Emit(model.EventMessageSent, model.SendResult{MessageID: msg.ID, Status: msg.Status})
}

// writePump pumps frames from the core to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs authenticates the request, upgrades it and registers the resulting
// connection with the hub.
func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		// Query param fallback, standard for browser WS clients.
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		log.Println("unauthorized: no token provided")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}

	userID, err := auth.VerifyIdentity(tokenString)
	if err != nil {
		log.Printf("unauthorized: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		key:    uuid.NewString(),
		userID: userID,
	}
	hub.register <- registration{userID: userID, client: client}

	go client.writePump()
	go client.readPump()
}
