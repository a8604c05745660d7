package bridge

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fares7elsadek/syncspace-watch/internal/engine"
)

type widgetCommand struct {
	Type     string  `json:"type"`
	ID       string  `json:"id"`
	VideoRef string  `json:"video_ref"`
	Seconds  float64 `json:"seconds"`
	Exact    bool    `json:"exact"`
	Rate     float64 `json:"rate"`
}

func newConnectedBridge(t *testing.T) (*Bridge, *websocket.Conn) {
	t.Helper()

	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	widget, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { widget.Close() })

	// The READY roundtrip doubles as a barrier: once it fires, the bridge
	// has registered the connection.
	ready := make(chan struct{})
	b.OnReady(func() { close(ready) })
	require.NoError(t, widget.WriteJSON(map[string]string{"type": "READY"}))
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("ready signal never arrived")
	}

	return b, widget
}

func readCommand(t *testing.T, widget *websocket.Conn) widgetCommand {
	t.Helper()

	widget.SetReadDeadline(time.Now().Add(time.Second))
	var cmd widgetCommand
	require.NoError(t, widget.ReadJSON(&cmd))
	return cmd
}

func TestCommandsReachWidget(t *testing.T) {
	b, widget := newConnectedBridge(t)
	ctx := context.Background()

	require.NoError(t, b.Load(ctx, "dQw4w9WgXcQ"))
	cmd := readCommand(t, widget)
	assert.Equal(t, "LOAD", cmd.Type)
	assert.Equal(t, "dQw4w9WgXcQ", cmd.VideoRef)

	require.NoError(t, b.SeekTo(ctx, 42.5, true))
	cmd = readCommand(t, widget)
	assert.Equal(t, "SEEK", cmd.Type)
	assert.Equal(t, 42.5, cmd.Seconds)
	assert.True(t, cmd.Exact)

	require.NoError(t, b.Play(ctx))
	assert.Equal(t, "PLAY", readCommand(t, widget).Type)

	require.NoError(t, b.Pause(ctx))
	assert.Equal(t, "PAUSE", readCommand(t, widget).Type)

	require.NoError(t, b.SetPlaybackRate(ctx, 1.5))
	cmd = readCommand(t, widget)
	assert.Equal(t, "SET_RATE", cmd.Type)
	assert.Equal(t, 1.5, cmd.Rate)
}

func TestCurrentTimeCorrelatesResponse(t *testing.T) {
	b, widget := newConnectedBridge(t)

	go func() {
		cmd := readCommand(t, widget)
		widget.WriteJSON(map[string]any{
			"type":  "TIME",
			"id":    cmd.ID,
			"value": 123.4,
		})
	}()

	value, err := b.CurrentTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 123.4, value)
}

func TestStateAndErrorEventsAreForwarded(t *testing.T) {
	b, widget := newConnectedBridge(t)

	states := make(chan engine.StateCode, 1)
	b.OnStateChange(func(code engine.StateCode) {
		states <- code
	})
	errors := make(chan int, 1)
	b.OnError(func(code int) {
		errors <- code
	})

	require.NoError(t, widget.WriteJSON(map[string]any{"type": "STATE", "code": 1}))
	select {
	case code := <-states:
		assert.Equal(t, engine.StatePlaying, code)
	case <-time.After(time.Second):
		t.Fatal("state change never arrived")
	}

	require.NoError(t, widget.WriteJSON(map[string]any{"type": "ERROR", "code": 101}))
	select {
	case code := <-errors:
		assert.Equal(t, 101, code)
	case <-time.After(time.Second):
		t.Fatal("error event never arrived")
	}
}

func TestReadyBeforeListenerRegistrationIsReplayed(t *testing.T) {
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(http.HandlerFunc(b.ServeHTTP))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	widget, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { widget.Close() })

	// The widget announces once at startup, before any session exists.
	require.NoError(t, widget.WriteJSON(map[string]string{"type": "READY"}))
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.ready
	}, time.Second, time.Millisecond)

	// A listener attached later (a session joining a room) still fires.
	fired := make(chan struct{})
	b.OnReady(func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("ready latched before registration was not replayed")
	}

	// Re-attaching fires again: every new session sees the latched state.
	refired := make(chan struct{})
	b.OnReady(func() { close(refired) })
	select {
	case <-refired:
	case <-time.After(time.Second):
		t.Fatal("ready latch was consumed by the first listener")
	}
}

func TestReadyLatchClearsWhenWidgetDrops(t *testing.T) {
	b, widget := newConnectedBridge(t)

	widget.Close()
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return !b.ready
	}, time.Second, time.Millisecond)

	fired := make(chan struct{}, 1)
	b.OnReady(func() { fired <- struct{}{} })
	select {
	case <-fired:
		t.Fatal("ready must not replay after the widget disconnected")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCommandsWithoutWidgetFail(t *testing.T) {
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.ErrorIs(t, b.Play(context.Background()), ErrNoWidget)
	_, err := b.CurrentTime(context.Background())
	assert.ErrorIs(t, err, ErrNoWidget)
}

func TestRequestTimesOutWithoutResponse(t *testing.T) {
	b, _ := newConnectedBridge(t)
	b.requestTimeout = 50 * time.Millisecond

	_, err := b.CurrentTime(context.Background())
	assert.ErrorIs(t, err, ErrRequestTimeout)
}
