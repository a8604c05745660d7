// Package bridge adapts the external player widget to the engine contract
// over a local websocket connection: commands out, lifecycle events in,
// request/response correlation for reads.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fares7elsadek/syncspace-watch/internal/engine"
)

var (
	ErrNoWidget       = errors.New("no player widget connected")
	ErrRequestTimeout = errors.New("player widget did not respond in time")
)

const defaultRequestTimeout = 5 * time.Second

type command struct {
	Type     string  `json:"type"`
	ID       string  `json:"id,omitempty"`
	VideoRef string  `json:"video_ref,omitempty"`
	Seconds  float64 `json:"seconds,omitempty"`
	Exact    bool    `json:"exact,omitempty"`
	Rate     float64 `json:"rate,omitempty"`
}

type widgetMessage struct {
	Type  string  `json:"type"`
	ID    string  `json:"id,omitempty"`
	Code  int     `json:"code,omitempty"`
	Value float64 `json:"value,omitempty"`
}

// Bridge holds at most one widget connection at a time; a newly connecting
// widget replaces the previous one.
type Bridge struct {
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	requestTimeout time.Duration

	mu            sync.Mutex
	conn          *websocket.Conn
	ready         bool
	pending       map[string]chan widgetMessage
	onReady       func()
	onStateChange func(engine.StateCode)
	onError       func(int)
}

func New(logger *slog.Logger) *Bridge {
	return &Bridge{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		requestTimeout: defaultRequestTimeout,
		pending:        make(map[string]chan widgetMessage),
	}
}

// ServeHTTP upgrades the widget connection and pumps its events until it
// drops.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("failed to upgrade widget connection", "error", err)
		return
	}

	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.conn = conn
	b.ready = false
	b.mu.Unlock()

	b.logger.Info("player widget connected", "remote_addr", r.RemoteAddr)
	b.readLoop(conn)

	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
		b.ready = false
	}
	b.mu.Unlock()
	b.logger.Info("player widget disconnected")
}

func (b *Bridge) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		var msg widgetMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "READY":
			b.mu.Lock()
			b.ready = true
			fn := b.onReady
			b.mu.Unlock()
			if fn != nil {
				fn()
			}
		case "STATE":
			if fn := b.stateFn(); fn != nil {
				fn(engine.StateCode(msg.Code))
			}
		case "ERROR":
			if fn := b.errorFn(); fn != nil {
				fn(msg.Code)
			}
		case "TIME", "RATE":
			b.resolve(msg)
		default:
			b.logger.Debug("unknown widget message", "type", msg.Type)
		}
	}
}

// OnReady registers the readiness listener. Readiness is latched per widget
// connection: the widget announces READY once, so a listener registered after
// the announcement is invoked immediately.
func (b *Bridge) OnReady(fn func()) {
	b.mu.Lock()
	b.onReady = fn
	replay := fn != nil && b.ready
	b.mu.Unlock()
	if replay {
		fn()
	}
}

func (b *Bridge) OnStateChange(fn func(engine.StateCode)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

func (b *Bridge) OnError(fn func(int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

func (b *Bridge) Load(ctx context.Context, videoRef string) error {
	return b.send(command{Type: "LOAD", VideoRef: videoRef})
}

func (b *Bridge) Play(ctx context.Context) error {
	return b.send(command{Type: "PLAY"})
}

func (b *Bridge) Pause(ctx context.Context) error {
	return b.send(command{Type: "PAUSE"})
}

func (b *Bridge) SeekTo(ctx context.Context, seconds float64, exact bool) error {
	return b.send(command{Type: "SEEK", Seconds: seconds, Exact: exact})
}

func (b *Bridge) CurrentTime(ctx context.Context) (float64, error) {
	return b.request(ctx, "GET_TIME")
}

func (b *Bridge) PlaybackRate(ctx context.Context) (float64, error) {
	return b.request(ctx, "GET_RATE")
}

func (b *Bridge) SetPlaybackRate(ctx context.Context, rate float64) error {
	return b.send(command{Type: "SET_RATE", Rate: rate})
}

// Release drops the widget connection and detaches every listener.
func (b *Bridge) Release() {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.ready = false
	b.onReady = nil
	b.onStateChange = nil
	b.onError = nil
	b.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (b *Bridge) send(cmd command) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return ErrNoWidget
	}
	if err := b.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("failed to send %s command: %w", cmd.Type, err)
	}

	return nil
}

func (b *Bridge) request(ctx context.Context, cmdType string) (float64, error) {
	id := uuid.NewString()
	ch := make(chan widgetMessage, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.send(command{Type: cmdType, ID: id}); err != nil {
		return 0, err
	}

	timeout := time.NewTimer(b.requestTimeout)
	defer timeout.Stop()

	select {
	case msg := <-ch:
		return msg.Value, nil
	case <-timeout.C:
		return 0, ErrRequestTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (b *Bridge) resolve(msg widgetMessage) {
	b.mu.Lock()
	ch, ok := b.pending[msg.ID]
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("response without pending request", "id", msg.ID)
		return
	}

	select {
	case ch <- msg:
	default:
	}
}

func (b *Bridge) stateFn() func(engine.StateCode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.onStateChange
}

func (b *Bridge) errorFn() func(int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.onError
}

var _ engine.Engine = (*Bridge)(nil)
