package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/zeusync/grabkit/internal/core/events/bus"
	"github.com/zeusync/grabkit/internal/core/grab"
	"github.com/zeusync/grabkit/internal/core/observability/log"
	"github.com/zeusync/grabkit/internal/core/touch"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Config holds stream server configuration
type Config struct {
	Addr         string
	ClientBuffer int
	WriteTimeout time.Duration
	// UpdateRate caps grab.update messages per second across all clients.
	// Begin and end transitions are never limited. Zero disables the cap.
	UpdateRate float64
}

func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8089",
		ClientBuffer: 64,
		WriteTimeout: 5 * time.Second,
	}
}

// Message is the JSON form of one grab or hover event.
type Message struct {
	Kind     string     `json:"kind"`
	Target   string     `json:"target,omitempty"`
	Handle   string     `json:"handle"`
	Pointer  string     `json:"pointer"`
	Location [3]float64 `json:"location"`
	Time     time.Time  `json:"time"`
}

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	dropped atomic.Uint64
}

// StreamServer fans grab and hover events out to websocket clients on
// /events. Events are published on the tick goroutine; each client has its
// own buffered queue and a slow client loses messages instead of stalling
// the tick.
type StreamServer struct {
	config Config
	events bus.EventBus
	logger log.Log

	server   *http.Server
	listener net.Listener
	subs     []bus.Subscription

	clients map[string]*client
	mu      sync.Mutex

	mux     *http.ServeMux
	updates *rate.Limiter
	dropped atomic.Uint64

	running     atomic.Bool
	workerGroup sync.WaitGroup
}

func NewStreamServer(events bus.EventBus, config Config, logger log.Log) *StreamServer {
	if logger == nil {
		logger = log.NewNop()
	}
	if config.ClientBuffer <= 0 {
		config.ClientBuffer = DefaultConfig().ClientBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}
	s := &StreamServer{
		config:  config,
		events:  events,
		logger:  logger,
		clients: make(map[string]*client),
		mux:     http.NewServeMux(),
	}
	if config.UpdateRate > 0 {
		s.updates = rate.NewLimiter(rate.Limit(config.UpdateRate), max(1, int(config.UpdateRate)))
	}
	s.mux.HandleFunc("/events", s.handleEvents)
	return s
}

// Handle mounts an extra endpoint, e.g. /metrics, next to /events. It must
// be called before Start.
func (s *StreamServer) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Start subscribes to the bus and begins accepting clients.
func (s *StreamServer) Start(_ context.Context) error {
	if s.events == nil {
		return fmt.Errorf("%w: no event bus", ErrInvalidConfig)
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("%w: %w", ErrListenerFailed, err)
	}
	s.listener = listener

	kinds := append(append([]string{}, grab.EventTypes...), touch.EventHoverBegin, touch.EventHoverEnd)
	for _, kind := range kinds {
		sub, err := s.events.Subscribe(kind, s.onEvent)
		if err != nil {
			s.unsubscribe()
			_ = listener.Close()
			s.running.Store(false)
			return fmt.Errorf("subscribe %s: %w", kind, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.server = &http.Server{Handler: s, ReadHeaderTimeout: 5 * time.Second}
	s.workerGroup.Add(1)
	go func() {
		defer s.workerGroup.Done()
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("stream server stopped", log.Error(err))
		}
	}()

	s.logger.Info("stream server started", log.String("addr", listener.Addr().String()))
	return nil
}

// Stop unsubscribes from the bus, disconnects every client and waits for the
// server goroutines.
func (s *StreamServer) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}
	s.unsubscribe()
	err := s.server.Shutdown(ctx)

	// Hijacked websocket connections are not closed by Shutdown. Holding mu
	// here also orders every admitted client's workerGroup.Add before Wait.
	s.mu.Lock()
	for _, c := range s.clients {
		_ = c.conn.Close()
	}
	s.mu.Unlock()

	s.workerGroup.Wait()
	s.logger.Info("stream server stopped")
	return err
}

// Addr is the bound listen address, useful when configured with port 0.
func (s *StreamServer) Addr() string {
	if s.listener == nil {
		return s.config.Addr
	}
	return s.listener.Addr().String()
}

// Clients returns the number of connected clients.
func (s *StreamServer) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped is the number of messages lost to full client queues or to the
// update rate cap.
func (s *StreamServer) Dropped() uint64 { return s.dropped.Load() }

func (s *StreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *StreamServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.running.Load() {
		http.Error(w, ErrServerNotRunning.Error(), http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, s.config.ClientBuffer),
	}
	// Admission and the worker count change under mu, so Stop either sees
	// this client in its close pass or the client sees Stop and leaves.
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[c.id] = c
	s.workerGroup.Add(2)
	s.mu.Unlock()
	defer s.workerGroup.Done()
	s.logger.Debug("stream client connected", log.String("client", c.id), log.String("remote", conn.RemoteAddr().String()))

	go s.writeLoop(c)

	// Clients never send anything meaningful; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.removeClient(c)
}

func (s *StreamServer) writeLoop(c *client) {
	defer s.workerGroup.Done()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.logger.Debug("stream write failed", log.String("client", c.id), log.Error(err))
			_ = c.conn.Close()
			// drain until removeClient closes the queue
			for range c.send {
			}
			return
		}
	}
}

func (s *StreamServer) removeClient(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c.id]; ok {
		delete(s.clients, c.id)
		close(c.send)
	}
	s.mu.Unlock()
	_ = c.conn.Close()
	s.logger.Debug("stream client disconnected",
		log.String("client", c.id),
		log.Uint64("dropped", c.dropped.Load()),
	)
}

func (s *StreamServer) onEvent(event bus.Event) error {
	msg, ok := encode(event)
	if !ok {
		return nil
	}
	if msg.Kind == grab.EventUpdate && s.updates != nil && !s.updates.Allow() {
		s.dropped.Add(1)
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.Type(), err)
	}
	s.broadcast(payload)
	return nil
}

func (s *StreamServer) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		select {
		case c.send <- payload:
		default:
			c.dropped.Add(1)
			s.dropped.Add(1)
		}
	}
}

func (s *StreamServer) unsubscribe() {
	for _, sub := range s.subs {
		_ = s.events.Unsubscribe(sub)
	}
	s.subs = nil
}

func encode(event bus.Event) (Message, bool) {
	switch e := event.(type) {
	case grab.Event:
		return Message{
			Kind:     e.Kind,
			Target:   e.Target.Name(),
			Handle:   e.Target.Handle().String(),
			Pointer:  e.Record.Ref().String(),
			Location: grab.TargetLocation(e.Record),
			Time:     e.At,
		}, true
	case touch.HoverEvent:
		return Message{
			Kind:     e.Kind,
			Handle:   e.Target.String(),
			Pointer:  "touch:" + e.Pointer.Name(),
			Location: e.Point,
			Time:     e.At,
		}, true
	default:
		return Message{}, false
	}
}
