package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/flock/config"
	"github.com/pthm-cable/flock/sim"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, f *Feed, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.Subscribers() == n },
		2*time.Second, 5*time.Millisecond)
}

func TestFeedDeliversFrames(t *testing.T) {
	feed := NewFeed(4)
	srv := httptest.NewServer(feed)
	defer srv.Close()
	defer feed.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitSubscribers(t, feed, 2)

	frame := sim.Frame{
		Tick:  7,
		Time:  0.5,
		World: [3]float64{80, 45, 45},
		Boids: []sim.FrameBoid{{Position: [3]float64{1, 2, 3}, Forward: [3]float64{0, 0, 1}, Up: [3]float64{1, 0, 0}}},
	}
	require.NoError(t, feed.Publish(frame))

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got sim.Frame
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, frame, got)
	}
	assert.Equal(t, int64(1), feed.Published())
	assert.Zero(t, feed.Dropped())
}

func TestFeedPublishWithoutSubscribers(t *testing.T) {
	feed := NewFeed(1)
	require.NoError(t, feed.Publish(sim.Frame{Tick: 1}))
	assert.Zero(t, feed.Published())
	assert.Zero(t, feed.Subscribers())
}

func TestFeedDropsWhenQueueFull(t *testing.T) {
	feed := NewFeed(2)
	s, ok := feed.subscribe()
	require.True(t, ok)

	for i := 1; i <= 5; i++ {
		require.NoError(t, feed.Publish(sim.Frame{Tick: int64(i)}))
	}
	assert.Equal(t, int64(5), feed.Published())
	assert.Equal(t, int64(3), feed.Dropped())
	assert.Len(t, s.frames, 2)

	feed.unsubscribe(s)
	assert.Zero(t, feed.Subscribers())
	// Unsubscribing twice is harmless.
	feed.unsubscribe(s)
}

func TestFeedCloseDisconnects(t *testing.T) {
	feed := NewFeed(1)
	srv := httptest.NewServer(feed)
	defer srv.Close()

	conn := dial(t, srv)
	waitSubscribers(t, feed, 1)

	feed.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Zero(t, feed.Subscribers())

	_, ok := feed.subscribe()
	assert.False(t, ok)
	require.NoError(t, feed.Publish(sim.Frame{}))
	feed.Close()
}

func TestFeedViewerDisconnect(t *testing.T) {
	feed := NewFeed(1)
	srv := httptest.NewServer(feed)
	defer srv.Close()
	defer feed.Close()

	conn := dial(t, srv)
	waitSubscribers(t, feed, 1)
	require.NoError(t, conn.Close())
	waitSubscribers(t, feed, 0)
}

func TestFeedHook(t *testing.T) {
	cfg := config.Default()
	cfg.Flock.Count = 3
	require.NoError(t, cfg.Finalize())
	s, err := sim.New(cfg, sim.NewRandomSource(1))
	require.NoError(t, err)

	feed := NewFeed(8)
	sub, ok := feed.subscribe()
	require.True(t, ok)

	hook := feed.Hook(2)
	for i := 0; i < 6; i++ {
		hook(s, s.Step(cfg.Physics.DT))
	}
	assert.Equal(t, int64(3), feed.Published())
	assert.Len(t, sub.frames, 3)
}
