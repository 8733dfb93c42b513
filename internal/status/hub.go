package status

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/taimoss/geoguessr-ai-1/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Events replayed to a freshly joined client.
	backlogSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed binds to loopback only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans automation events out to connected websocket clients and keeps
// a short backlog for catch-up on join.
type Hub struct {
	register   chan *wsClient
	unregister chan *wsClient
	events     chan Event

	mu      sync.Mutex
	backlog []Event
	ln      net.Listener

	srv *http.Server
	log zerolog.Logger
}

// NewHub creates a hub. Call Serve to start accepting clients.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		events:     make(chan Event, 256),
		log:        logging.Component("status"),
	}
}

// Publish queues an event for broadcast. Never blocks: when the hub is
// saturated the event is dropped, the automation must not wait on
// observers.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case h.events <- ev:
	default:
	}
}

// Serve listens on addr and runs the hub loop until ctx is cancelled.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.ln = ln
	h.mu.Unlock()
	h.srv = &http.Server{Handler: mux}

	go h.run(ctx)
	go func() {
		<-ctx.Done()
		h.srv.Close()
	}()

	h.log.Info().Str("addr", ln.Addr().String()).Msg("status feed listening")
	if err := h.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Addr reports the bound listen address, or "" before Serve has started.
func (h *Hub) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ln == nil {
		return ""
	}
	return h.ln.Addr().String()
}

func (h *Hub) run(ctx context.Context) {
	clients := make(map[*wsClient]bool)
	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				close(c.send)
			}
			return
		case c := <-h.register:
			clients[c] = true
			h.mu.Lock()
			snap := Snapshot{Type: EventSnapshot, Events: append([]Event(nil), h.backlog...)}
			h.mu.Unlock()
			c.enqueue(snap)
		case c := <-h.unregister:
			if clients[c] {
				delete(clients, c)
				close(c.send)
			}
		case ev := <-h.events:
			h.mu.Lock()
			h.backlog = append(h.backlog, ev)
			if len(h.backlog) > backlogSize {
				h.backlog = h.backlog[len(h.backlog)-backlogSize:]
			}
			h.mu.Unlock()
			for c := range clients {
				select {
				case c.send <- ev:
				default:
					// Slow consumer, drop it.
					delete(clients, c)
					close(c.send)
				}
			}
		}
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &wsClient{hub: h, conn: conn, send: make(chan any, 256)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan any
}

func (c *wsClient) enqueue(msg any) {
	select {
	case c.send <- msg:
	default:
	}
}

// readPump discards client messages, it exists to notice disconnects and
// answer pings.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
