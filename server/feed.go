package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Receipt reports one handled transaction to feed subscribers.
type Receipt struct {
	Time   int64  `json:"time"`
	Source string `json:"source"` // "socket" or "inbox"
	Op     string `json:"op"`
	OK     bool   `json:"ok"`
	Check  string `json:"check,omitempty"`
	Err    string `json:"err,omitempty"`
	Path   string `json:"path,omitempty"`
}

func newReceipt(source, op string, res *Response) *Receipt {
	return &Receipt{
		Time:   time.Now().Unix(),
		Source: source,
		Op:     op,
		OK:     res.OK,
		Check:  res.Check,
		Err:    res.Err,
		Path:   res.Path,
	}
}

// Hub maintains the set of active websocket clients and broadcasts
// receipts to them as JSON text messages.
type Hub struct {
	// WriteWait bounds each write to a subscriber; one that can't keep
	// up is dropped.
	WriteWait  time.Duration
	clients    map[*websocket.Conn]bool
	broadcast  chan *Receipt
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		WriteWait:  10 * time.Second,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan *Receipt, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run delivers receipts until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for conn := range h.clients {
				conn.Close()
			}
			return
		case conn := <-h.register:
			h.clients[conn] = true
		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		case rc := <-h.broadcast:
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(h.WriteWait))
				if err := conn.WriteJSON(rc); err != nil {
					delete(h.clients, conn)
					conn.Close()
				}
			}
		}
	}
}

func (h *Hub) Stop() {
	close(h.done)
}

// Publish queues rc for delivery.  Receipts are dropped rather than
// stalling the caller when subscribers fall behind.
func (h *Hub) Publish(rc *Receipt) {
	select {
	case h.broadcast <- rc:
	default:
		log.Debugf("feed full, dropped receipt for %s", rc.Path)
	}
}

var upgrader = websocket.Upgrader{
	// subscribers only read
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the connection to a websocket and registers it
// with the Hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// keep the connection open until the client goes away
	for {
		if _, _, err := conn.NextReader(); err != nil {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
			return
		}
	}
}
