// Package notify pushes saved verdicts to websocket subscribers.
package notify

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"token-vetting/internal/domain"
	"token-vetting/internal/observability"
)

// EventVerdictSaved is the type of every event the hub sends.
const EventVerdictSaved = "verdict.saved"

// Event is the JSON frame sent to subscribers.
type Event struct {
	Type    string          `json:"type"`
	Verdict *domain.Verdict `json:"verdict"`
}

// HubConfig configures connection behavior.
type HubConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// PongTimeout is how long a client may stay silent before it is dropped.
	PongTimeout time.Duration
	// WriteTimeout is timeout for writing one frame.
	WriteTimeout time.Duration
	// SendBuffer is how many events may queue per client before it is
	// dropped as too slow.
	SendBuffer int
	// AllowedOrigins lists browser origins besides the server's own that may
	// subscribe, e.g. "https://dashboard.example.com". "*" allows any.
	AllowedOrigins []string
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   32,
	}
}

type subscriber struct {
	conn   *websocket.Conn
	token  domain.TokenID // empty means every token
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

// Hub fans verdicts out to websocket subscribers. It implements
// vetting.Publisher and http.Handler.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	logger   logrus.FieldLogger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewHub creates a hub. A nil config uses DefaultHubConfig.
func NewHub(config *HubConfig, logger logrus.FieldLogger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		logger: logger.WithField("component", "notify"),
		subs:   make(map[*subscriber]struct{}),
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients), same-origin requests, and the listed origins.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	_, allowAll := set["*"]

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		if _, ok := set[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// ServeHTTP upgrades the request and subscribes the connection. The optional
// token query parameter limits the feed to one token.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var filter domain.TokenID
	if raw := r.URL.Query().Get("token"); raw != "" {
		t, err := domain.ParseTokenID(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter = t
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	s := &subscriber{
		conn:   conn,
		token:  filter,
		send:   make(chan []byte, h.config.SendBuffer),
		closed: make(chan struct{}),
	}
	h.add(s)

	go h.writeLoop(s)
	go h.readLoop(s)
}

// Publish queues v for every matching subscriber. Subscribers whose queue is
// full are disconnected rather than blocking the caller.
func (h *Hub) Publish(v *domain.Verdict) {
	if v == nil {
		return
	}
	frame, err := json.Marshal(Event{Type: EventVerdictSaved, Verdict: v})
	if err != nil {
		h.logger.WithError(err).Error("marshal verdict event")
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	for s := range h.subs {
		if s.token != "" && s.token != v.TokenID {
			continue
		}
		select {
		case s.send <- frame:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn("dropping slow websocket subscriber")
		h.remove(s)
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.config.WriteTimeout))
		s.close()
	}
	observability.SetFeedClients(0)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	observability.SetFeedClients(n)
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	n := len(h.subs)
	h.mu.Unlock()
	s.close()
	observability.SetFeedClients(n)
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()
	defer h.remove(s)

	for {
		select {
		case <-s.closed:
			return
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound frames and notices disconnects.
func (h *Hub) readLoop(s *subscriber) {
	defer h.remove(s)

	_ = s.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
