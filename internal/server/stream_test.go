package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/zeusync/grabkit/internal/core/events/bus"
	"github.com/zeusync/grabkit/internal/core/grab"
	"github.com/zeusync/grabkit/internal/core/models"
	"github.com/zeusync/grabkit/internal/core/pointer"
	"github.com/zeusync/grabkit/internal/core/systems/physics"
	"github.com/zeusync/grabkit/internal/core/touch"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startServer(t *testing.T, events bus.EventBus) *StreamServer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	s := NewStreamServer(events, cfg, nil)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func dial(t *testing.T, s *StreamServer) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/events", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStreamGrabEvents(t *testing.T) {
	events := bus.New()
	s := startServer(t, events)
	conn := dial(t, s)
	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 5*time.Millisecond)

	target := grab.NewTarget("crate", grab.WithBus(events))
	target.SetHandle(models.Handle{Index: 3, Generation: 1})
	hand := pointer.NewNear("left", 0)
	hand.SetGrabPointerTransform(physics.At(mgl64.Vec3{1, 2, 3}))
	require.NoError(t, target.OnBeginGrab(hand))
	require.Equal(t, 1, target.OnEndGrab(hand))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var begin, end Message
	require.NoError(t, conn.ReadJSON(&begin))
	require.NoError(t, conn.ReadJSON(&end))

	want := Message{
		Kind:     grab.EventBegin,
		Target:   "crate",
		Handle:   "3#1",
		Pointer:  "near:left",
		Location: [3]float64{1, 2, 3},
	}
	require.Empty(t, cmp.Diff(want, begin, cmpopts.IgnoreFields(Message{}, "Time")))
	require.False(t, begin.Time.IsZero())

	want.Kind = grab.EventEnd
	require.Empty(t, cmp.Diff(want, end, cmpopts.IgnoreFields(Message{}, "Time")))
}

func TestStreamHoverEvents(t *testing.T) {
	events := bus.New()
	s := startServer(t, events)
	conn := dial(t, s)
	require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, events.Publish(touch.HoverEvent{
		Kind:    touch.EventHoverBegin,
		Pointer: touch.NewPointer("index", 0),
		Target:  models.Handle{Index: 0, Generation: 2},
		Point:   mgl64.Vec3{0.5, 0, 0},
		At:      time.Now(),
	}))
	// Unrelated events are not streamed.
	require.NoError(t, events.Publish(bus.NewEvent(touch.EventHoverEnd, "test", nil)))
	require.NoError(t, events.Publish(touch.HoverEvent{
		Kind:    touch.EventHoverEnd,
		Pointer: touch.NewPointer("index", 0),
		Target:  models.Handle{Index: 0, Generation: 2},
		At:      time.Now(),
	}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, touch.EventHoverBegin, msg.Kind)
	require.Equal(t, "touch:index", msg.Pointer)
	require.Equal(t, "0#2", msg.Handle)
	require.Empty(t, msg.Target)

	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, touch.EventHoverEnd, msg.Kind)
}

func TestStreamSlowClientDrops(t *testing.T) {
	s := NewStreamServer(bus.New(), Config{ClientBuffer: 1}, nil)
	c := &client{id: "slow", send: make(chan []byte, 1)}
	s.clients[c.id] = c

	s.broadcast([]byte("a"))
	s.broadcast([]byte("b"))
	s.broadcast([]byte("c"))

	require.EqualValues(t, 2, c.dropped.Load())
	require.EqualValues(t, 2, s.Dropped())
	require.Equal(t, []byte("a"), <-c.send)
}

func TestStreamUpdateRate(t *testing.T) {
	events := bus.New()
	s := NewStreamServer(events, Config{ClientBuffer: 16, UpdateRate: 1}, nil)
	c := &client{id: "c", send: make(chan []byte, 16)}
	s.clients[c.id] = c

	target := grab.NewTarget("crate", grab.WithBus(events))
	hand := pointer.NewNear("left", 0)
	for _, kind := range grab.EventTypes {
		_, err := events.Subscribe(kind, s.onEvent)
		require.NoError(t, err)
	}

	require.NoError(t, target.OnBeginGrab(hand))
	for range 5 {
		require.True(t, target.OnUpdateGrab(hand))
	}
	require.Equal(t, 1, target.OnEndGrab(hand))

	// begin, one update inside the burst, end
	require.Len(t, c.send, 3)
	require.EqualValues(t, 4, s.Dropped())
	require.Zero(t, c.dropped.Load())
}

func TestStreamMountedHandler(t *testing.T) {
	s := NewStreamServer(bus.New(), DefaultConfig(), nil)
	s.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestStreamLifecycle(t *testing.T) {
	t.Run("NoBus", func(t *testing.T) {
		s := NewStreamServer(nil, DefaultConfig(), nil)
		require.ErrorIs(t, s.Start(context.Background()), ErrInvalidConfig)
	})

	t.Run("DoubleStartStop", func(t *testing.T) {
		events := bus.New()
		s := startServer(t, events)
		require.ErrorIs(t, s.Start(context.Background()), ErrServerAlreadyRunning)

		conn := dial(t, s)
		require.Eventually(t, func() bool { return s.Clients() == 1 }, time.Second, 5*time.Millisecond)

		require.NoError(t, s.Stop(context.Background()))
		require.ErrorIs(t, s.Stop(context.Background()), ErrServerNotRunning)
		require.Eventually(t, func() bool { return s.Clients() == 0 }, time.Second, 5*time.Millisecond)

		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err := conn.ReadMessage()
		require.Error(t, err)
		for _, info := range events.GetTopics() {
			require.Zero(t, info.Subs)
		}
	})

	t.Run("UpgradeAfterStop", func(t *testing.T) {
		s := startServer(t, bus.New())
		require.NoError(t, s.Stop(context.Background()))

		// A request already routed to the handler when Stop ran.
		late := httptest.NewServer(http.HandlerFunc(s.handleEvents))
		defer late.Close()
		conn, resp, err := websocket.DefaultDialer.Dial("ws"+late.URL[len("http"):], nil)
		if conn != nil {
			_ = conn.Close()
		}
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.Zero(t, s.Clients())
	})

	t.Run("UnknownPath", func(t *testing.T) {
		s := NewStreamServer(bus.New(), DefaultConfig(), nil)
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("BadListenAddr", func(t *testing.T) {
		s := NewStreamServer(bus.New(), Config{Addr: "256.0.0.1:bad"}, nil)
		require.ErrorIs(t, s.Start(context.Background()), ErrListenerFailed)
		require.ErrorIs(t, s.Stop(context.Background()), ErrServerNotRunning)
	})
}
