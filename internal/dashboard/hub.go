package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	clientQueue  = 32
	writeTimeout = 5 * time.Second
)

// client owns one websocket connection. Only its writer goroutine writes
// to conn.
type client struct {
	conn  *websocket.Conn
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close(code, reason)
	})
}

// hub fans out encoded messages to every client. A client whose queue is
// full is disconnected rather than slowing the others down.
type hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	lastSync []byte
	logger   *log.Logger
}

func newHub(logger *log.Logger) *hub {
	return &hub{clients: make(map[*client]struct{}), logger: logger}
}

// join registers conn and queues the latest sync result for it.
func (h *hub) join(conn *websocket.Conn) *client {
	c := &client{
		conn:  conn,
		queue: make(chan []byte, clientQueue),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.lastSync != nil {
		c.queue <- h.lastSync
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Printf("Client connected (total: %d)", n)
	return c
}

func (h *hub) leave(c *client, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close(code, reason)
	if ok {
		h.logger.Printf("Client disconnected (total: %d)", n)
	}
}

func (h *hub) publish(typ MessageType, data []byte) {
	h.mu.Lock()
	if typ == MessageTypeSyncComplete {
		h.lastSync = data
	}
	var slow []*client
	for c := range h.clients {
		select {
		case c.queue <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Println("WARNING: client queue full, disconnecting")
		go h.leave(c, websocket.StatusTryAgainLater, "too slow")
	}
}

// writeLoop drains the queue of c until c or ctx is done.
func (h *hub) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.queue:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Printf("Failed to send to client: %v", err)
				h.leave(c, websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// readLoop only watches for the client going away.
func (h *hub) readLoop(ctx context.Context, c *client) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			h.leave(c, websocket.StatusNormalClosure, "")
			return
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.leave(c, websocket.StatusGoingAway, "server shutting down")
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
