package notify

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
)

const sendQueueSize = 32

// Client is one account's event feed connection.
type Client struct {
	AccountID string
	Conn      *websocket.Conn
	Send      chan any
	Done      chan struct{}

	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.Done)
		if c.Conn != nil {
			c.Conn.Close()
		}
	})
}

// Hub tracks at most one feed connection per account.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// AddClient registers conn for accountID, closing any connection it replaces.
func (h *Hub) AddClient(accountID string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.clients[accountID]; ok {
		existing.close()
	}

	client := &Client{
		AccountID: accountID,
		Conn:      conn,
		Send:      make(chan any, sendQueueSize),
		Done:      make(chan struct{}),
	}
	h.clients[accountID] = client
	return client
}

// RemoveClient closes client and unregisters it unless a newer connection
// has already taken its place.
func (h *Hub) RemoveClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.close()
	if current, ok := h.clients[client.AccountID]; ok && current == client {
		delete(h.clients, client.AccountID)
	}
}

func (h *Hub) Client(accountID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.clients[accountID]
}

func (h *Hub) IsOnline(accountID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, exists := h.clients[accountID]
	return exists
}

// OnlineAccounts returns the connected account ids in sorted order.
func (h *Hub) OnlineAccounts() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	accounts := make([]string, 0, len(h.clients))
	for id := range h.clients {
		accounts = append(accounts, id)
	}
	sort.Strings(accounts)
	return accounts
}

// SendTo queues message for accountID without blocking.
func (h *Hub) SendTo(accountID string, message any) error {
	h.mu.RLock()
	client, ok := h.clients[accountID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("account %s is not online", accountID)
	}

	select {
	case <-client.Done:
		return fmt.Errorf("account %s disconnected", accountID)
	default:
	}

	select {
	case client.Send <- message:
		return nil
	case <-client.Done:
		return fmt.Errorf("account %s disconnected", accountID)
	default:
		return fmt.Errorf("account %s event queue full", accountID)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		client.close()
		delete(h.clients, id)
	}
}
