package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/drone-gateway/internal/infrastructure/config"
	"github.com/nerrad567/drone-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/drone-gateway/internal/telemetry"
)

// Stream message types. Clients send subscribe, unsubscribe and ping; the
// gateway answers with ack, pong or error and pushes event messages.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgPing        = "ping"
	MsgPong        = "pong"
	MsgAck         = "ack"
	MsgEvent       = "event"
	MsgError       = "error"
)

// outboxSize bounds the frames queued for one subscriber. Events for a
// subscriber whose outbox is full are dropped.
const outboxSize = 64

// StreamMessage is the envelope for every frame in either direction.
type StreamMessage struct {
	Type     string    `json:"type"`
	ID       string    `json:"id,omitempty"`
	Channel  string    `json:"channel,omitempty"`
	Channels []string  `json:"channels,omitempty"`
	Time     time.Time `json:"time,omitzero"`
	Data     any       `json:"data,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// streamChannels are the channels a client may subscribe to.
var streamChannels = map[string]bool{
	telemetry.ChannelStateChanged: true,
	telemetry.ChannelSample:       true,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by corsMiddleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans device events out to WebSocket subscribers.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}

	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:         cfg,
		logger:      logger,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.shutdown()
	}
	if len(subs) > 0 {
		h.logger.Info("websocket subscribers disconnected", "count", len(subs))
	}
}

// ClientCount returns the number of attached subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns how many event frames were discarded for slow subscribers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Broadcast sends payload to every subscriber of channel. It never blocks;
// it is called from worker goroutines by telemetry.HubObserver.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := json.Marshal(StreamMessage{
		Type:    MsgEvent,
		Channel: channel,
		Time:    time.Now().UTC(),
		Data:    payload,
	})
	if err != nil {
		h.logger.Error("encoding stream event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subscribers {
		if !s.wants(channel) {
			continue
		}
		if !s.enqueue(frame) {
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) attach(s *subscriber) {
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()
	h.logger.Debug("websocket subscriber attached", "clients", n)
}

// detach removes s and closes its outbox. Safe to call more than once.
func (h *Hub) detach(s *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, s)
	n := len(h.subscribers)
	h.mu.Unlock()
	s.closeOutbox()
	h.logger.Debug("websocket subscriber detached", "clients", n)
}

// subscriber is one WebSocket connection. Its outbox is drained by
// writeLoop; readLoop handles control frames.
type subscriber struct {
	hub  *Hub
	conn *websocket.Conn

	mu       sync.Mutex
	channels map[string]bool
	outbox   chan []byte
	closed   bool
}

func newSubscriber(h *Hub, conn *websocket.Conn) *subscriber {
	return &subscriber{
		hub:      h,
		conn:     conn,
		channels: make(map[string]bool),
		outbox:   make(chan []byte, outboxSize),
	}
}

func (s *subscriber) wants(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[channel]
}

// enqueue queues frame without blocking. It reports false if the frame was
// dropped because the outbox is full or closed.
func (s *subscriber) enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.outbox <- frame:
		return true
	default:
		return false
	}
}

func (s *subscriber) closeOutbox() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.outbox)
	}
}

func (s *subscriber) shutdown() {
	s.closeOutbox()
	if s.conn != nil {
		s.conn.Close() //nolint:errcheck // Connection is being torn down
	}
}

func (s *subscriber) reply(msg StreamMessage) {
	msg.Time = time.Now().UTC()
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.enqueue(frame)
}

// handleWebSocket upgrades the request and attaches a subscriber. Nothing is
// pushed until the client subscribes to a channel.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "request_id", requestID(r))
		return
	}

	sub := newSubscriber(s.hub, conn)
	s.hub.attach(sub)

	go sub.writeLoop(s.wsCfg)
	go sub.readLoop(s.wsCfg)
}

func (s *subscriber) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		s.hub.detach(s)
		s.conn.Close() //nolint:errcheck // Connection is being torn down
	}()

	idle := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return s.conn.SetReadDeadline(time.Now().Add(idle)) }

	s.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // Deadline errors surface on the next read
	s.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // Deadline errors surface on the next read
		s.handle(data)
	}
}

func (s *subscriber) writeLoop(cfg config.WebSocketConfig) {
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ping.Stop()
		s.conn.Close() //nolint:errcheck // Connection is being torn down
	}()

	write := func(kind int, data []byte) error {
		if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return s.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-s.outbox:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // Peer may already be gone
				return
			}
			if err := write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle processes one client frame.
func (s *subscriber) handle(data []byte) {
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply(StreamMessage{Type: MsgError, Error: "invalid JSON message"})
		return
	}

	switch msg.Type {
	case MsgSubscribe, MsgUnsubscribe:
		for _, ch := range msg.Channels {
			if !streamChannels[ch] {
				s.reply(StreamMessage{Type: MsgError, ID: msg.ID, Error: "unknown channel: " + ch})
				return
			}
		}
		s.mu.Lock()
		for _, ch := range msg.Channels {
			if msg.Type == MsgSubscribe {
				s.channels[ch] = true
			} else {
				delete(s.channels, ch)
			}
		}
		s.mu.Unlock()
		s.hub.logger.Debug("websocket subscription changed", "type", msg.Type, "channels", msg.Channels)
		s.reply(StreamMessage{Type: MsgAck, ID: msg.ID, Channels: msg.Channels})
	case MsgPing:
		s.reply(StreamMessage{Type: MsgPong, ID: msg.ID})
	default:
		s.reply(StreamMessage{Type: MsgError, ID: msg.ID, Error: "unknown message type: " + msg.Type})
	}
}
