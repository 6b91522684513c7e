package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vaultchat/vaultchat/internal/logging"
	"github.com/vaultchat/vaultchat/internal/stream"
)

const (
	wsPingInterval  = 30 * time.Second
	wsReadDeadline  = 60 * time.Second
	wsWriteDeadline = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // single-user local server
	},
}

// WSMessage is the envelope for both directions of the WebSocket protocol.
// Client to server: type is "chat" or "abort". Server to client: type is the
// wire event name and Data carries the payload.
type WSMessage struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversationID,omitempty"`
	SessionID      string          `json:"sessionID,omitempty"`
	Content        string          `json:"content,omitempty"`
	Mode           string          `json:"mode,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// wsConn is one WebSocket connection acting as a stream sink. Writes are
// serialized by writeMu; sessions tracks the streams this connection owns so
// a disconnect can sweep them.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]bool
	closed   bool
}

// handleWebSocket handles GET /ws.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsConn{
		conn:     conn,
		sessions: make(map[string]bool),
	}

	go c.pingLoop()
	s.readLoop(c)
}

// readLoop consumes client messages until the connection drops, then cancels
// every stream the connection owns.
func (s *Server) readLoop(c *wsConn) {
	defer func() {
		c.markClosed()
		c.conn.Close()
		for _, id := range c.ownedSessions() {
			s.services.Controller.Cancel(context.Background(), id)
		}
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message")
			continue
		}

		switch msg.Type {
		case "chat":
			s.handleWSChat(c, msg)
		case "abort":
			s.services.Controller.Cancel(context.Background(), msg.SessionID)
		default:
			c.sendError("unknown message type: " + msg.Type)
		}
	}
}

// handleWSChat starts a stream whose sink writes straight back to this
// connection.
func (s *Server) handleWSChat(c *wsConn, msg WSMessage) {
	if msg.ConversationID == "" || msg.Content == "" {
		c.sendError("conversationID and content are required")
		return
	}

	sessionID, userMsg, err := s.startStream(context.Background(), msg.ConversationID, msg.Content, msg.Mode, c.sink())
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.ownSession(sessionID)

	c.send(WSMessage{
		Type:           "accepted",
		ConversationID: msg.ConversationID,
		SessionID:      sessionID,
		Data:           mustMarshal(userMsg),
	})
}

// sink adapts the connection as a stream sink. Write failures propagate so
// the emitter's retry and exhaustion handling applies.
func (c *wsConn) sink() stream.Sink {
	return stream.SinkFunc(func(ctx context.Context, name string, payload any) error {
		return c.send(WSMessage{Type: name, Data: mustMarshal(payload)})
	})
}

// send writes one message under the write mutex with a deadline.
func (c *wsConn) send(msg WSMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) sendError(message string) {
	_ = c.send(WSMessage{Type: "error", Error: message})
}

// pingLoop keeps the connection alive until a write fails.
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for range ticker.C {
		if c.isClosed() {
			return
		}
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
		err := c.conn.WriteMessage(websocket.PingMessage, nil)
		c.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *wsConn) ownSession(id string) {
	c.mu.Lock()
	c.sessions[id] = true
	c.mu.Unlock()
}

func (c *wsConn) ownedSessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (c *wsConn) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *wsConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
