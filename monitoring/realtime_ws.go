package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heartrisk/predict"
	"heartrisk/registry"
)

// MessageType tags every message sent on the feed.
type MessageType string

const PredictionEvent MessageType = "prediction"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Message is the envelope written to websocket clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// PredictionMessage is the payload of a PredictionEvent.
type PredictionMessage struct {
	PredictionID   string  `json:"prediction_id"`
	RequestID      string  `json:"request_id"`
	Model          string  `json:"model"`
	ModelUsed      string  `json:"model_used"`
	PredictedClass int     `json:"predicted_class"`
	Label          string  `json:"prediction_label"`
	Probability    float64 `json:"probability_score_class_1"`
	Cached         bool    `json:"cached"`
}

// ClientMessage lets a client narrow the feed to some models.
type ClientMessage struct {
	Type  string `json:"type"` // subscribe or unsubscribe
	Topic string `json:"topic"`
}

// FeedStats is a point-in-time view of the feed.
type FeedStats struct {
	ConnectedClients int       `json:"connected_clients"`
	MessagesSent     uint64    `json:"messages_sent"`
	MessagesDropped  uint64    `json:"messages_dropped"`
	StartTime        time.Time `json:"start_time"`
}

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string

	mu            sync.Mutex
	subscriptions map[string]bool
}

// wants reports whether the client receives messages for topic.
// A client without subscriptions receives everything.
func (c *client) wants(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[topic]
}

type outbound struct {
	topic   string
	payload []byte
}

// PredictionFeed broadcasts successful predictions to websocket clients.
// Clients that fall behind are disconnected.
type PredictionFeed struct {
	clients    map[*client]bool
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *zap.Logger

	sent      atomic.Uint64
	dropped   atomic.Uint64
	startTime time.Time
}

func NewPredictionFeed(logger *zap.Logger, allowedOrigins []string) *PredictionFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PredictionFeed{
		clients:    make(map[*client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.Named("feed"),
		startTime: time.Now(),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Run owns the client set until Stop is called.
func (f *PredictionFeed) Run() {
	defer f.logger.Info("prediction feed stopped")

	for {
		select {
		case c := <-f.register:
			f.mu.Lock()
			f.clients[c] = true
			total := len(f.clients)
			f.mu.Unlock()
			f.logger.Info("client connected", zap.String("client", c.clientID), zap.Int("total", total))

		case c := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[c]; ok {
				delete(f.clients, c)
				close(c.send)
			}
			total := len(f.clients)
			f.mu.Unlock()
			f.logger.Info("client disconnected", zap.String("client", c.clientID), zap.Int("total", total))

		case msg := <-f.broadcast:
			f.mu.Lock()
			for c := range f.clients {
				if !c.wants(msg.topic) {
					continue
				}
				select {
				case c.send <- msg.payload:
					f.sent.Add(1)
				default:
					f.dropped.Add(1)
					close(c.send)
					delete(f.clients, c)
					f.logger.Warn("dropping slow client", zap.String("client", c.clientID))
				}
			}
			f.mu.Unlock()

		case <-f.ctx.Done():
			f.mu.Lock()
			for c := range f.clients {
				close(c.send)
				delete(f.clients, c)
			}
			f.mu.Unlock()
			return
		}
	}
}

func (f *PredictionFeed) Stop() {
	f.cancel()
}

// HandleWebSocket upgrades the request and attaches the connection to the feed.
func (f *PredictionFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		clientID:      uuid.NewString(),
		subscriptions: make(map[string]bool),
	}
	select {
	case f.register <- c:
	case <-f.ctx.Done():
		conn.Close()
		return
	}

	go c.writePump(f.logger)
	go c.readPump(f)
}

// Publish implements predict.Publisher.
func (f *PredictionFeed) Publish(result *predict.Result) {
	data, err := json.Marshal(PredictionMessage{
		PredictionID:   result.PredictionID,
		RequestID:      result.RequestID,
		Model:          result.Model,
		ModelUsed:      result.ModelUsed,
		PredictedClass: result.PredictedClass,
		Label:          result.Label,
		Probability:    result.Probability,
		Cached:         result.Cached,
	})
	if err != nil {
		f.logger.Error("failed to marshal prediction", zap.Error(err))
		return
	}
	payload, err := json.Marshal(Message{
		Type:      PredictionEvent,
		Timestamp: result.CreatedAt,
		Data:      data,
		ID:        result.PredictionID,
	})
	if err != nil {
		f.logger.Error("failed to marshal message", zap.Error(err))
		return
	}
	f.Broadcast(result.Model, payload)
}

// Broadcast queues payload for every client subscribed to topic. It never blocks.
func (f *PredictionFeed) Broadcast(topic string, payload []byte) {
	select {
	case f.broadcast <- outbound{topic: topic, payload: payload}:
	default:
		f.dropped.Add(1)
		f.logger.Warn("broadcast queue is full, dropping message", zap.String("topic", topic))
	}
}

func (f *PredictionFeed) Stats() FeedStats {
	f.mu.RLock()
	connected := len(f.clients)
	f.mu.RUnlock()
	return FeedStats{
		ConnectedClients: connected,
		MessagesSent:     f.sent.Load(),
		MessagesDropped:  f.dropped.Load(),
		StartTime:        f.startTime,
	}
}

func (c *client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write failed", zap.String("client", c.clientID), zap.Error(err))
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

func (c *client) readPump(f *PredictionFeed) {
	defer func() {
		select {
		case f.unregister <- c:
		case <-f.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				f.logger.Debug("websocket read failed", zap.String("client", c.clientID), zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Debug("ignoring client message", zap.String("client", c.clientID), zap.Error(err))
			continue
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg ClientMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Type {
	case "subscribe":
		c.subscriptions[registry.NormalizeName(msg.Topic)] = true
	case "unsubscribe":
		delete(c.subscriptions, registry.NormalizeName(msg.Topic))
	}
}
