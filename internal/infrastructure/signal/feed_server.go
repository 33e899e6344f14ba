package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"
	"qosmon/pkg/tracing"
	"qosmon/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxClientMessageSize = 512

var upgrader = websocket.Upgrader{
	// The feed is read-only; origin policy belongs to the fronting proxy.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type FeedConfig struct {
	PingInterval  time.Duration
	PongTimeout   time.Duration
	WriteTimeout  time.Duration
	SendQueueSize int
}

func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		PingInterval:  30 * time.Second,
		PongTimeout:   60 * time.Second,
		WriteTimeout:  10 * time.Second,
		SendQueueSize: 64,
	}
}

// FeedMessage is the envelope pushed to feed clients. Data is a
// *domain.MetricsSnapshot for metrics and a []domain.Alert for alerts.
type FeedMessage struct {
	Type      domain.EventType `json:"type"`
	SessionID domain.SessionID `json:"sessionId"`
	Timestamp time.Time        `json:"timestamp"`
	Data      interface{}      `json:"data"`
}

type feedClient struct {
	id        string
	sessionID domain.SessionID
	conn      *websocket.Conn
	send      chan FeedMessage
	done      chan struct{}
	closeOnce sync.Once
}

func (c *feedClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// FeedServer pushes the metrics and alerts of one session to websocket
// clients subscribed to it. Slow clients lose messages instead of stalling
// the publisher.
type FeedServer struct {
	cfg FeedConfig

	clients map[domain.SessionID]map[*feedClient]struct{}
	mu      sync.RWMutex

	logger *zap.SugaredLogger
}

func NewFeedServer(cfg FeedConfig, logger *zap.SugaredLogger) *FeedServer {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultFeedConfig().SendQueueSize
	}
	return &FeedServer{
		cfg:     cfg,
		clients: make(map[domain.SessionID]map[*feedClient]struct{}),
		logger:  logger,
	}
}

// Attach subscribes the feed to a monitoring event source.
func (s *FeedServer) Attach(events ports.EventSubscriber) (detach func()) {
	unsubMetrics := events.SubscribeMetrics(s.HandleMetrics)
	unsubAlerts := events.SubscribeAlerts(s.HandleAlerts)
	return func() {
		unsubMetrics()
		unsubAlerts()
	}
}

func (s *FeedServer) HandleMetrics(ev domain.MetricsEvent) {
	s.broadcast(FeedMessage{
		Type:      domain.EventMetrics,
		SessionID: ev.SessionID,
		Timestamp: time.Now(),
		Data:      ev.Snapshot,
	})
}

func (s *FeedServer) HandleAlerts(ev domain.AlertsEvent) {
	s.broadcast(FeedMessage{
		Type:      domain.EventAlerts,
		SessionID: ev.SessionID,
		Timestamp: time.Now(),
		Data:      ev.Alerts,
	})
}

func (s *FeedServer) broadcast(msg FeedMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients[msg.SessionID] {
		select {
		case client.send <- msg:
		case <-client.done:
		default:
			s.logger.Warnw("feed client queue full, dropping message",
				"session_id", msg.SessionID,
				"client_id", client.id,
				"type", msg.Type,
			)
		}
	}
}

// ServeSession upgrades the request and streams events of sessionID until
// the client disconnects or the server closes.
func (s *FeedServer) ServeSession(w http.ResponseWriter, r *http.Request, sessionID domain.SessionID) {
	if err := validation.ValidateSessionID(string(sessionID)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}

	client := &feedClient{
		id:        uuid.NewString(),
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan FeedMessage, s.cfg.SendQueueSize),
		done:      make(chan struct{}),
	}
	s.register(client)
	defer s.unregister(client)

	s.logger.Infow("feed client connected", "session_id", sessionID, "client_id", client.id)

	go s.writePump(client)
	s.readPump(client)

	s.logger.Infow("feed client disconnected", "session_id", sessionID, "client_id", client.id)
}

func (s *FeedServer) register(c *feedClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.clients[c.sessionID]
	if !ok {
		set = make(map[*feedClient]struct{})
		s.clients[c.sessionID] = set
	}
	set[c] = struct{}{}
}

func (s *FeedServer) unregister(c *feedClient) {
	c.close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.clients[c.sessionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(s.clients, c.sessionID)
		}
	}
}

// readPump only services control frames; clients have nothing to say.
func (s *FeedServer) readPump(c *feedClient) {
	c.conn.SetReadLimit(maxClientMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debugw("feed client read error", "client_id", c.id, "error", err)
			}
			return
		}
	}
}

func (s *FeedServer) writePump(c *feedClient) {
	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()
	defer c.close()

	for {
		select {
		case msg := <-c.send:
			_, span := tracing.TraceFeedMessage(context.Background(), string(msg.Type), string(msg.SessionID))
			c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			err := c.conn.WriteJSON(msg)
			span.End()
			if err != nil {
				s.logger.Infow("error writing feed message", "client_id", c.id, "error", err)
				return
			}

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "client_id", c.id, "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

// ClientCount returns the number of clients following sessionID.
func (s *FeedServer) ClientCount(sessionID domain.SessionID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[sessionID])
}

// Close disconnects every client.
func (s *FeedServer) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, set := range s.clients {
		for client := range set {
			client.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			client.close()
		}
	}
}
