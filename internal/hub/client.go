package hub

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is enforced by the upgrade middleware
	},
}

// Client represents a connected WebSocket client and its in-memory session.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	connID string
	send   chan []byte

	sendMu sync.Mutex
	closed bool

	// Session state below is guarded by hub.mu, not by the client itself.
	userID     string
	username   string
	opponentID string // opponent's connID while in a match
	matchID    string
}

// ConnID returns the connection identifier assigned at accept.
func (c *Client) ConnID() string {
	return c.connID
}

// HandleWebSocket upgrades the HTTP request and registers the connection.
func HandleWebSocket(h *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[WS] Upgrade error: %v", err)
			return
		}

		client := &Client{
			hub:    h,
			conn:   conn,
			connID: uuid.Must(uuid.NewV4()).String(),
			send:   make(chan []byte, 256),
		}

		h.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// Send marshals and queues a message for the client. Messages are dropped
// when the client's buffer is full or the connection is closing.
func (c *Client) Send(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("[WS] send buffer full for conn %s, dropping message", c.connID)
	}
}

// sendError sends a generic typed error event to the client.
func (c *Client) sendError(message string) {
	c.Send(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}

// closeSend shuts the outbound channel exactly once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.sendMu.Unlock()
}

// closeConn forces the underlying connection shut, with a best-effort close
// frame. Used when a newer login takes the session over.
func (c *Client) closeConn(reason string) {
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second)); err != nil {
		log.Printf("Error writing close control to conn %s: %v", c.connID, err)
	}
	c.conn.Close()
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Channel closed, connection is being replaced or cleaned up.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error for conn %s: %v", c.connID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("WebSocket ping error for conn %s: %v", c.connID, err)
				return
			}
		}
	}
}

// readPump reads inbound frames and feeds them to the router in arrival order.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (unexpected) for conn %s: %v", c.connID, err)
			} else {
				log.Printf("WebSocket read error for conn %s: %v", c.connID, err)
			}
			break
		}

		c.hub.route(context.Background(), c, message)
	}
}
