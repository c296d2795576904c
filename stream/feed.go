// Package stream broadcasts simulation frames to websocket viewers.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pthm-cable/flock/sim"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type subscriber struct {
	frames chan []byte
}

// Feed fans frames out to any number of websocket subscribers. Publishing
// never blocks: a subscriber whose queue is full misses the frame.
type Feed struct {
	buffer int

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewFeed creates a feed queueing up to buffer frames per subscriber.
func NewFeed(buffer int) *Feed {
	return &Feed{
		buffer: max(buffer, 1),
		subs:   make(map[*subscriber]struct{}),
	}
}

// Publish encodes frame once and queues it for every subscriber.
func (f *Feed) Publish(frame sim.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || len(f.subs) == 0 {
		return nil
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encoding frame %d: %w", frame.Tick, err)
	}
	f.published.Add(1)
	for s := range f.subs {
		select {
		case s.frames <- data:
		default:
			f.dropped.Add(1)
		}
	}
	return nil
}

// Hook returns a sim.TickHook that publishes a frame every n ticks.
func (f *Feed) Hook(n int64) sim.TickHook {
	n = max(n, 1)
	return func(s *sim.Simulation, stats sim.StepStats) {
		if stats.Tick%n != 0 {
			return
		}
		if err := f.Publish(s.Frame()); err != nil {
			slog.Warn("frame publish failed", "error", err)
		}
	}
}

// Subscribers returns the number of connected viewers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Dropped returns how many subscriber deliveries were skipped because the
// subscriber's queue was full.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

// Published returns how many frames were encoded for delivery.
func (f *Feed) Published() int64 {
	return f.published.Load()
}

func (f *Feed) subscribe() (*subscriber, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, false
	}
	s := &subscriber{frames: make(chan []byte, f.buffer)}
	f.subs[s] = struct{}{}
	return s, true
}

func (f *Feed) unsubscribe(s *subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[s]; ok {
		delete(f.subs, s)
		close(s.frames)
	}
}

// ServeHTTP upgrades the request to a websocket and streams frames to it
// until either side disconnects or the feed is closed.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	s, ok := f.subscribe()
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
			time.Now().Add(writeTimeout))
		return
	}
	slog.Info("viewer connected", "remote", conn.RemoteAddr().String())
	defer slog.Info("viewer disconnected", "remote", conn.RemoteAddr().String())

	// Viewers never send anything; reading only detects the disconnect.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer f.unsubscribe(s)
	for {
		select {
		case <-gone:
			return
		case data, ok := <-s.frames:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
					time.Now().Add(writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber and rejects new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for s := range f.subs {
		delete(f.subs, s)
		close(s.frames)
	}
}

// ListenAndServe serves the feed at /ws on addr until ctx is cancelled.
func (f *Feed) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", f)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("frame feed listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("frame feed: %w", err)
	case <-ctx.Done():
	}

	f.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("frame feed shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("frame feed: %w", err)
	}
	return nil
}
