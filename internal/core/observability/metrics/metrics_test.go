package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/zeusync/grabkit/internal/core/events/bus"
)

type fakeStream struct {
	clients int
	dropped uint64
}

func (f *fakeStream) Clients() int    { return f.clients }
func (f *fakeStream) Dropped() uint64 { return f.dropped }

func TestEventCounting(t *testing.T) {
	m := New()
	events := bus.New()
	events.AddObserver(m)

	_, err := events.SubscribeTopic("grab/x", "grab.begin", func(bus.Event) error { return nil })
	require.NoError(t, err)
	_, err = events.Subscribe("touch.hover.begin", func(bus.Event) error { return errors.New("boom") })
	require.NoError(t, err)

	require.NoError(t, events.PublishToTopic("grab/x", bus.NewEvent("grab.begin", "test", nil)))
	require.NoError(t, events.PublishToTopic("grab/x", bus.NewEvent("grab.begin", "test", nil)))
	require.Error(t, events.Publish(bus.NewEvent("touch.hover.begin", "test", nil)))

	require.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("grab.begin")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("touch.hover.begin")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.handlerErrors.WithLabelValues("touch.hover.begin")))
}

func TestTickAndStream(t *testing.T) {
	m := New()
	m.ObserveTick(2*time.Millisecond, 3)
	require.Equal(t, 3.0, testutil.ToFloat64(m.activeTargets))

	stream := &fakeStream{clients: 2, dropped: 7}
	require.NoError(t, m.RegisterStream(stream))
	require.Error(t, m.RegisterStream(stream))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "grabkit_tick_duration_seconds_count 1")
	require.Contains(t, body, "grabkit_stream_clients 2")
	require.Contains(t, body, "grabkit_stream_dropped_messages_total 7")
}
