package transport

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testBackbone is a minimal frame-echoing endpoint: it records every frame a
// client sends and lets tests push MESSAGE frames back.
type testBackbone struct {
	upgrader websocket.Upgrader
	frames   chan Frame

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newTestBackbone() *testBackbone {
	return &testBackbone{
		frames: make(chan Frame, 32),
	}
}

func (b *testBackbone) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		b.frames <- f
	}
}

func (b *testBackbone) push(t *testing.T, f Frame) {
	t.Helper()

	b.mu.Lock()
	require.NotEmpty(t, b.conns)
	conn := b.conns[len(b.conns)-1]
	b.mu.Unlock()

	require.NoError(t, conn.WriteJSON(f))
}

func (b *testBackbone) dropConnection(t *testing.T) {
	t.Helper()

	b.mu.Lock()
	require.NotEmpty(t, b.conns)
	conn := b.conns[len(b.conns)-1]
	b.mu.Unlock()

	conn.Close()
}

func (b *testBackbone) connectionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

func waitFrame(t *testing.T, frames <-chan Frame) Frame {
	t.Helper()

	select {
	case f := <-frames:
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func assertNoFrame(t *testing.T, frames <-chan Frame) {
	t.Helper()

	select {
	case f := <-frames:
		t.Fatalf("unexpected frame: %+v", f)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestMultiplexer(t *testing.T, opts ...MultiplexerOption) (*Multiplexer, *testBackbone) {
	t.Helper()

	backbone := newTestBackbone()
	srv := httptest.NewServer(backbone)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	m := NewMultiplexer(url, logger, opts...)
	require.NoError(t, m.Connect())
	t.Cleanup(func() { m.Close() })

	return m, backbone
}

func TestSubscriptionsAreReferenceCounted(t *testing.T) {
	m, backbone := newTestMultiplexer(t)
	destination := "/topic/room/r1/control"

	received1 := make(chan []byte, 1)
	unsub1, err := m.Subscribe(destination, func(payload []byte) {
		received1 <- payload
	})
	require.NoError(t, err)

	f := waitFrame(t, backbone.frames)
	assert.Equal(t, FrameSubscribe, f.Type)
	assert.Equal(t, destination, f.Destination)

	received2 := make(chan []byte, 1)
	unsub2, err := m.Subscribe(destination, func(payload []byte) {
		received2 <- payload
	})
	require.NoError(t, err)
	assertNoFrame(t, backbone.frames)

	backbone.push(t, Frame{Type: FrameMessage, Destination: destination, Body: []byte(`{"x":1}`)})
	select {
	case payload := <-received1:
		assert.JSONEq(t, `{"x":1}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("first handler did not receive the message")
	}
	select {
	case payload := <-received2:
		assert.JSONEq(t, `{"x":1}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("second handler did not receive the message")
	}

	unsub1()
	unsub1()
	assertNoFrame(t, backbone.frames)

	unsub2()
	f = waitFrame(t, backbone.frames)
	assert.Equal(t, FrameUnsubscribe, f.Type)
	assert.Equal(t, destination, f.Destination)
}

func TestPublishSendsFrame(t *testing.T) {
	m, backbone := newTestMultiplexer(t)

	require.NoError(t, m.Publish("/app/room/r1/viewing", map[string]string{"status": "START"}))

	f := waitFrame(t, backbone.frames)
	assert.Equal(t, FrameSend, f.Type)
	assert.Equal(t, "/app/room/r1/viewing", f.Destination)
	assert.JSONEq(t, `{"status":"START"}`, string(f.Body))
}

func TestMessagesForOtherDestinationsAreIgnored(t *testing.T) {
	m, backbone := newTestMultiplexer(t)

	received := make(chan []byte, 1)
	_, err := m.Subscribe("/topic/room/r1/control", func(payload []byte) {
		received <- payload
	})
	require.NoError(t, err)
	waitFrame(t, backbone.frames)

	backbone.push(t, Frame{Type: FrameMessage, Destination: "/topic/room/r2/control", Body: []byte(`{}`)})

	select {
	case <-received:
		t.Fatal("handler received a message for another destination")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReconnectReplaysSubscriptions(t *testing.T) {
	m, backbone := newTestMultiplexer(t, WithReconnectDelay(10*time.Millisecond))

	states := make(chan bool, 4)
	m.OnConnectionStateChange(func(connected bool) {
		states <- connected
	})

	destination := "/topic/room/r1/control"
	received := make(chan []byte, 1)
	_, err := m.Subscribe(destination, func(payload []byte) {
		received <- payload
	})
	require.NoError(t, err)
	waitFrame(t, backbone.frames)

	backbone.dropConnection(t)

	assert.False(t, <-states)
	assert.True(t, <-states)
	require.Eventually(t, func() bool {
		return backbone.connectionCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	f := waitFrame(t, backbone.frames)
	assert.Equal(t, FrameSubscribe, f.Type)
	assert.Equal(t, destination, f.Destination)

	// The replayed subscription is live on the new connection.
	backbone.push(t, Frame{Type: FrameMessage, Destination: destination, Body: []byte(`{"x":2}`)})
	select {
	case payload := <-received:
		assert.JSONEq(t, `{"x":2}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("handler did not receive a message after reconnect")
	}
}
