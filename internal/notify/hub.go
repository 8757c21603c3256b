// Package notify pushes executed transactions to the owning user's open
// websocket connections.
package notify

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/papertrade/internal/models"
	"github.com/xtrntr/papertrade/internal/money"
	"github.com/xtrntr/papertrade/internal/view"
	"go.uber.org/zap"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many events may queue for one connection before it
	// is considered too slow and dropped.
	sendBuffer = 16
)

// Event is the message sent for each committed transaction.
type Event struct {
	Type        string           `json:"type"`
	Transaction view.Transaction `json:"transaction"`
	Cash        string           `json:"cash"`
	CashDisplay string           `json:"cash_display"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub tracks websocket clients per user.
type Hub struct {
	mu       sync.RWMutex
	clients  map[int]map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub accepts upgrades from the request's own host and from the listed
// origins.
func NewHub(origins []string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[int]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origins) },
		},
		logger: logger,
	}
}

func allowOrigin(r *http.Request, origins []string) bool {
	reqOrigin := r.Header.Get("Origin")
	if reqOrigin == "" {
		return true
	}
	if u, err := url.Parse(reqOrigin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, o := range origins {
		if strings.EqualFold(o, reqOrigin) {
			return true
		}
	}
	return false
}

// Serve upgrades the request and keeps the connection registered for userID
// until the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID int) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Int("user_id", userID), zap.Error(err))
		return
	}
	c := newClient(conn)
	h.add(userID, c)
	go h.writeLoop(userID, c)
	defer func() {
		h.remove(userID, c)
		c.close()
	}()

	// Inbound messages are ignored; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(userID int, c *client) {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("dropping websocket client", zap.Int("user_id", userID), zap.Error(err))
				h.remove(userID, c)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) add(userID int, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(userID int, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[userID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// Count returns the number of live connections for userID.
func (h *Hub) Count(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// TransactionExecuted queues the transaction and resulting balance for every
// connection of its owner. It never waits on the network; a connection whose
// queue is full is dropped.
func (h *Hub) TransactionExecuted(tx models.Transaction, cash decimal.Decimal) {
	data, err := json.Marshal(Event{
		Type:        "transaction",
		Transaction: view.NewTransaction(tx),
		Cash:        money.Fixed(cash),
		CashDisplay: money.Format(cash),
	})
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[tx.UserID]))
	for c := range h.clients[tx.UserID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("websocket client too slow, dropping", zap.Int("user_id", tx.UserID))
			h.remove(tx.UserID, c)
			c.close()
		}
	}
}
