package monitor

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"camlbot/internal/protocol"
	"camlbot/internal/session"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second

	backlogCapacity = 256
	clientBufSize   = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Operator console binds to localhost.
	},
}

// Server is the operator console: a session listing over HTTP and a live
// WebSocket stream of session events. It plugs into the registry as its
// event sink.
type Server struct {
	registry  *session.Registry
	backlog   *Backlog
	clients   map[string]*client
	clientsMu sync.RWMutex
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// New creates a monitor server over the given registry.
func New(registry *session.Registry) *Server {
	return &Server{
		registry: registry,
		backlog:  NewBacklog(backlogCapacity),
		clients:  make(map[string]*client),
	}
}

// SessionEvent implements session.EventSink: record the event and fan it out
// to connected clients. Slow clients are skipped, never waited on.
func (s *Server) SessionEvent(e session.Event) {
	s.backlog.Add(e)

	msg, err := eventMessage(e)
	if err != nil {
		return
	}
	s.broadcast(msg)
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.registry.List())
}

// handleWebSocket upgrades an HTTP connection, replays the backlog, and
// streams live events.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor: websocket upgrade error: %v", err)
		return
	}

	c := &client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, clientBufSize),
		server: s,
	}

	s.clientsMu.Lock()
	s.clients[c.id] = c
	s.clientsMu.Unlock()

	for _, e := range s.backlog.Recent() {
		if msg, err := eventMessage(e); err == nil {
			c.enqueue(msg)
		}
	}

	go c.writePump()
	go c.readPump()
}

// eventMessage converts a registry event into a protocol message.
func eventMessage(e session.Event) (*protocol.Message, error) {
	switch e.Type {
	case session.EventCreated:
		return protocol.NewMessage(protocol.TypeSessionUpdate, protocol.SessionUpdatePayload{
			ChatID:    e.ChatID,
			CreatedAt: e.Timestamp.Format(time.RFC3339Nano),
		})
	case session.EventTerminated:
		return protocol.NewMessage(protocol.TypeSessionTerminated, protocol.SessionTerminatedPayload{
			ChatID: e.ChatID,
		})
	default:
		return protocol.NewMessage(protocol.TypeSessionTraffic, protocol.SessionTrafficPayload{
			ChatID:    e.ChatID,
			Direction: string(e.Type),
			Data:      e.Data,
		})
	}
}

// readPump reads client messages until the connection drops.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("monitor: websocket read error: %v", err)
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes queued messages and keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) enqueue(msg *protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		// Client buffer full, drop.
	}
}

func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c.id)
	s.clientsMu.Unlock()

	close(c.send)
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeSessionKill:
		var payload protocol.SessionKillPayload
		json.Unmarshal(msg.Payload, &payload)

		if err := s.registry.Destroy(payload.ChatID); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				s.sendError(c, protocol.ErrSessionNotFound, err.Error())
				return
			}
			log.Printf("monitor: kill session %d: %v", payload.ChatID, err)
		}
	}
}

// broadcast sends a message to all connected clients.
func (s *Server) broadcast(msg *protocol.Message) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, c := range s.clients {
		c.enqueue(msg)
	}
}

func (s *Server) sendError(c *client, code, message string) {
	msg, err := protocol.NewErrorMessage(code, message)
	if err != nil {
		return
	}
	c.enqueue(msg)
}
