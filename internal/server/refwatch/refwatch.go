// Package refwatch implements the /watch endpoint: a WebSocket broadcast
// of branch-ref-advance events to subscribed clients. It is a direct
// adaptation of gitvista's internal/server RepoSession/websocket broadcast
// machinery (same client map, ping/pong pump, and non-blocking broadcast
// channel), retargeted from "repository reloaded, here is a tree delta" to
// "branch X now points at commit Y".
package refwatch

import (
	"compress/flate"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait             = 10 * time.Second
	pongWait              = 60 * time.Second
	pingPeriod            = 54 * time.Second
	maxMessageSize        = 512
	broadcastChannelSize  = 256
)

// BranchUpdate is broadcast whenever a branch's ref advances (create,
// fast-forward push CAS, or delete — the latter with CommitID empty).
type BranchUpdate struct {
	Branch   string `json:"branch"`
	CommitID string `json:"commit_id,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"`
}

var upgrader = websocket.Upgrader{
	// A watch subscriber has no write access of its own; allow any origin,
	// matching the teacher's local-mode upgrader (this server has no
	// browser-facing session to hijack).
	CheckOrigin:       func(_ *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub tracks connected watch subscribers and fans out BranchUpdate events.
type Hub struct {
	logger *slog.Logger

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex

	broadcast chan BranchUpdate

	done     chan struct{}
	wg       sync.WaitGroup
	clientWg sync.WaitGroup
}

// NewHub constructs a Hub. Call Start before the first Broadcast.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:    logger,
		clients:   make(map[*websocket.Conn]*sync.Mutex),
		broadcast: make(chan BranchUpdate, broadcastChannelSize),
		done:      make(chan struct{}),
	}
	return h
}

// Start launches the broadcast fan-out goroutine.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
}

// Close stops the broadcast goroutine, sends close frames, and force-closes
// all client connections.
func (h *Hub) Close() {
	close(h.done)
	h.wg.Wait()

	h.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.clientsMu.RUnlock()

	if len(conns) > 0 {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		deadline := time.Now().Add(1 * time.Second)
		for _, c := range conns {
			_ = c.WriteControl(websocket.CloseMessage, closeMsg, deadline)
		}
		time.Sleep(250 * time.Millisecond)
	}

	h.clientsMu.Lock()
	for c := range h.clients {
		c.Close()
	}
	h.clients = make(map[*websocket.Conn]*sync.Mutex)
	h.clientsMu.Unlock()

	h.clientWg.Wait()
}

// Broadcast queues an update for delivery to every connected subscriber.
// Non-blocking: drops the update if the channel is full.
func (h *Hub) Broadcast(u BranchUpdate) {
	select {
	case h.broadcast <- u:
	default:
		h.logger.Warn("refwatch: broadcast channel full, dropping update", "branch", u.Branch)
	}
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case <-h.done:
			return
		case u := <-h.broadcast:
			h.sendToAll(u)
		}
	}
}

func (h *Hub) sendToAll(u BranchUpdate) {
	h.clientsMu.RLock()
	snapshot := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for c, mu := range h.clients {
		snapshot[c] = mu
	}
	h.clientsMu.RUnlock()

	var failed []*websocket.Conn
	for c, mu := range snapshot {
		mu.Lock()
		err := c.SetWriteDeadline(time.Now().Add(writeWait))
		if err == nil {
			err = c.WriteJSON(u)
		}
		mu.Unlock()
		if err != nil {
			h.logger.Error("refwatch: send failed", "addr", c.RemoteAddr(), "err", err)
			failed = append(failed, c)
		}
	}

	if len(failed) > 0 {
		h.clientsMu.Lock()
		for _, c := range failed {
			delete(h.clients, c)
			c.Close()
		}
		h.clientsMu.Unlock()
	}
}

// HandleWebSocket upgrades the connection and registers it as a subscriber
// until the client disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("refwatch: upgrade failed", "err", err)
		return
	}

	conn.EnableWriteCompression(true)
	_ = conn.SetCompressionLevel(flate.BestSpeed)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := h.register(conn)
	done := make(chan struct{})
	h.clientWg.Add(2)
	go h.readPump(conn, done)
	go h.writePump(conn, done, writeMu)
}

func (h *Hub) register(conn *websocket.Conn) *sync.Mutex {
	writeMu := &sync.Mutex{}
	h.clientsMu.Lock()
	h.clients[conn] = writeMu
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Info("refwatch: subscriber connected", "addr", conn.RemoteAddr(), "total", count)
	return writeMu
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *Hub) readPump(conn *websocket.Conn, done chan struct{}) {
	defer h.clientWg.Done()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("refwatch: recovered panic in readPump", "panic", r)
		}
		close(done)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, done chan struct{}, writeMu *sync.Mutex) {
	defer h.clientWg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer h.removeClient(conn)

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err == nil {
				err = conn.WriteMessage(websocket.PingMessage, nil)
			}
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
