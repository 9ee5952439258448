// Package websocket pushes live-reload messages to preview pages.
package websocket

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/tagfill/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	readWait       = 60 * time.Second
	pingPeriod     = (readWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16

	// DefaultMaxConnectionsPerIP bounds the reload sockets one address may hold.
	DefaultMaxConnectionsPerIP = 20
)

// Message types sent to clients.
const (
	MessageReload = "reload"
)

// UpdateMessage is sent to every connected page.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OriginValidator decides whether a websocket origin may connect.
type OriginValidator func(origin string) bool

type client struct {
	conn *websocket.Conn
	ip   string
	send chan []byte
}

// Manager owns the connected clients and broadcasts to them.
type Manager struct {
	validate OriginValidator
	logger   logging.Logger
	maxPerIP int

	mu      sync.RWMutex
	clients map[*client]struct{}
	perIP   map[string]int

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewManager returns a manager that accepts origins approved by validate.
// A nil logger discards output.
func NewManager(validate OriginValidator, logger logging.Logger) *Manager {
	if validate == nil {
		panic("websocket: origin validator is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		validate: validate,
		logger:   logger.WithComponent("websocket"),
		maxPerIP: DefaultMaxConnectionsPerIP,
		clients:  make(map[*client]struct{}),
		perIP:    make(map[string]int),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// HandleWebSocket upgrades the request and keeps the socket open until the
// page goes away or the manager shuts down.
func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if m.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if !m.validate(origin) {
		m.logger.Warn(r.Context(), nil, "WebSocket origin rejected", "origin", origin)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ip := clientIP(r)
	if !m.reserve(ip) {
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origins were checked above.
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		m.release(ip)
		m.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "ip", ip)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, ip: ip, send: make(chan []byte, sendBuffer)}
	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()

	m.wg.Add(1)
	defer m.wg.Done()
	m.logger.Debug(r.Context(), "WebSocket client connected", "ip", ip, "clients", m.ClientCount())

	go m.write(c)
	m.read(c)
	m.remove(c, websocket.StatusNormalClosure, "")
}

// read discards client messages; it only detects when the page goes away.
func (m *Manager) read(c *client) {
	for {
		ctx, cancel := context.WithTimeout(m.ctx, readWait)
		_, _, err := c.conn.Read(ctx)
		cancel()
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && m.ctx.Err() == nil {
				m.logger.Debug(m.ctx, "WebSocket read ended", "ip", c.ip, "error", err.Error())
			}
			return
		}
	}
}

func (m *Manager) write(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(m.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				m.remove(c, websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(m.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				m.remove(c, websocket.StatusPolicyViolation, "ping failed")
				return
			}
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) reserve(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.perIP[ip] >= m.maxPerIP {
		return false
	}
	m.perIP[ip]++
	return true
}

func (m *Manager) release(ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(ip)
}

func (m *Manager) releaseLocked(ip string) {
	if m.perIP[ip] <= 1 {
		delete(m.perIP, ip)
		return
	}
	m.perIP[ip]--
}

// remove drops c once; later calls are no-ops.
func (m *Manager) remove(c *client, status websocket.StatusCode, reason string) {
	m.mu.Lock()
	if _, ok := m.clients[c]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, c)
	m.releaseLocked(c.ip)
	close(c.send)
	m.mu.Unlock()

	_ = c.conn.Close(status, reason)
}

// Broadcast sends msg to every client. Clients whose buffer is full are
// disconnected rather than blocking the others.
func (m *Manager) Broadcast(msg UpdateMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error(m.ctx, err, "Failed to marshal broadcast message")
		return
	}

	var slow []*client
	m.mu.RLock()
	for c := range m.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range slow {
		m.remove(c, websocket.StatusTryAgainLater, "client too slow")
	}
}

// ClientCount returns the number of connected clients.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Shutdown closes every client and waits for their handlers to return or
// ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.cancel()
		m.mu.RLock()
		clients := make([]*client, 0, len(m.clients))
		for c := range m.clients {
			clients = append(clients, c)
		}
		m.mu.RUnlock()
		for _, c := range clients {
			m.remove(c, websocket.StatusGoingAway, "server shutdown")
		}
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
