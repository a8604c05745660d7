package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/exp/maps"
)

const (
	defaultReconnectDelay    = 5 * time.Second
	defaultHeartbeatInterval = 4 * time.Second
)

var ErrClosed = errors.New("multiplexer is closed")

// Handler consumes the body of a MESSAGE frame. Handlers for one connection
// are invoked sequentially from the read loop, so messages are applied in
// receipt order.
type Handler func(payload []byte)

type subscription struct {
	handlers map[uint64]Handler
	nextID   uint64
}

// Multiplexer owns the process-wide connection to the messaging backbone and
// multiplexes per-destination subscriptions over it. Subscriptions are
// reference-counted: the SUBSCRIBE frame goes out when the first handler for
// a destination registers, the UNSUBSCRIBE when the last one leaves, so
// re-entering a room never double-subscribes.
type Multiplexer struct {
	url               string
	logger            *slog.Logger
	clock             clockwork.Clock
	dialer            *websocket.Dialer
	reconnectDelay    time.Duration
	heartbeatInterval time.Duration

	mu             sync.Mutex
	conn           *websocket.Conn
	subs           map[string]*subscription
	stateListeners []func(connected bool)
	closed         bool
}

type MultiplexerOption func(*Multiplexer)

func WithClock(clock clockwork.Clock) MultiplexerOption {
	return func(m *Multiplexer) { m.clock = clock }
}

func WithReconnectDelay(d time.Duration) MultiplexerOption {
	return func(m *Multiplexer) { m.reconnectDelay = d }
}

func NewMultiplexer(url string, logger *slog.Logger, opts ...MultiplexerOption) *Multiplexer {
	m := &Multiplexer{
		url:               url,
		logger:            logger,
		clock:             clockwork.NewRealClock(),
		dialer:            websocket.DefaultDialer,
		reconnectDelay:    defaultReconnectDelay,
		heartbeatInterval: defaultHeartbeatInterval,
		subs:              make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect dials the backbone and starts the read loop. Reconnection after a
// connection drop is handled internally with a fixed delay; subscribers keep
// their registrations across reconnects.
func (m *Multiplexer) Connect() error {
	conn, _, err := m.dialer.Dial(m.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial backbone: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	m.conn = conn
	m.mu.Unlock()

	go m.run(conn)

	return nil
}

func (m *Multiplexer) Close() error {
	m.mu.Lock()
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// OnConnectionStateChange registers a listener for connect/disconnect
// transitions of the underlying connection.
func (m *Multiplexer) OnConnectionStateChange(fn func(connected bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateListeners = append(m.stateListeners, fn)
}

// Subscribe registers a handler for a destination and returns its
// unsubscribe func. Calling the returned func more than once is a no-op.
func (m *Multiplexer) Subscribe(destination string, h Handler) (func(), error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	sub, ok := m.subs[destination]
	if !ok {
		sub = &subscription{handlers: make(map[uint64]Handler)}
		m.subs[destination] = sub
	}
	first := len(sub.handlers) == 0
	id := sub.nextID
	sub.nextID++
	sub.handlers[id] = h
	m.mu.Unlock()

	if first {
		if err := m.writeFrame(Frame{Type: FrameSubscribe, Destination: destination}); err != nil {
			m.logger.Warn("failed to send subscribe frame", "destination", destination, "error", err)
		}
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			m.mu.Lock()
			sub, ok := m.subs[destination]
			if !ok {
				m.mu.Unlock()
				return
			}
			delete(sub.handlers, id)
			last := len(sub.handlers) == 0
			if last {
				delete(m.subs, destination)
			}
			m.mu.Unlock()

			if last {
				if err := m.writeFrame(Frame{Type: FrameUnsubscribe, Destination: destination}); err != nil {
					m.logger.Warn("failed to send unsubscribe frame", "destination", destination, "error", err)
				}
			}
		})
	}

	return unsubscribe, nil
}

// Publish sends a payload to an application destination.
func (m *Multiplexer) Publish(destination string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal publish body: %w", err)
	}

	if err := m.writeFrame(Frame{Type: FrameSend, Destination: destination, Body: raw}); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", destination, err)
	}

	return nil
}

func (m *Multiplexer) writeFrame(f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil {
		return errors.New("not connected")
	}

	return m.conn.WriteJSON(f)
}

func (m *Multiplexer) run(conn *websocket.Conn) {
	for {
		err := m.readLoop(conn)

		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}

		m.logger.Warn("backbone connection lost", "error", err)
		m.notifyState(false)

		conn = m.reconnect()
		if conn == nil {
			return
		}
		m.notifyState(true)
	}
}

func (m *Multiplexer) readLoop(conn *websocket.Conn) error {
	stopHeartbeat := make(chan struct{})
	defer close(stopHeartbeat)
	go m.heartbeat(conn, stopHeartbeat)

	conn.SetReadDeadline(m.readDeadline())
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(m.readDeadline())
	})

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		conn.SetReadDeadline(m.readDeadline())

		if f.Type != FrameMessage {
			continue
		}
		m.dispatch(f.Destination, f.Body)
	}
}

func (m *Multiplexer) readDeadline() time.Time {
	return time.Now().Add(3 * m.heartbeatInterval)
}

func (m *Multiplexer) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := m.clock.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			deadline := time.Now().Add(m.heartbeatInterval)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (m *Multiplexer) dispatch(destination string, body []byte) {
	m.mu.Lock()
	sub, ok := m.subs[destination]
	var handlers []Handler
	if ok {
		handlers = make([]Handler, 0, len(sub.handlers))
		for _, h := range sub.handlers {
			handlers = append(handlers, h)
		}
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(body)
	}
}

// reconnect redials with a fixed delay until it succeeds or the multiplexer
// is closed, then replays every registered subscription.
func (m *Multiplexer) reconnect() *websocket.Conn {
	for {
		m.clock.Sleep(m.reconnectDelay)

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		conn, _, err := m.dialer.Dial(m.url, nil)
		if err != nil {
			m.logger.Warn("backbone redial failed", "error", err)
			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			conn.Close()
			return nil
		}
		m.conn = conn
		destinations := maps.Keys(m.subs)
		m.mu.Unlock()

		for _, destination := range destinations {
			if err := m.writeFrame(Frame{Type: FrameSubscribe, Destination: destination}); err != nil {
				m.logger.Warn("failed to resubscribe", "destination", destination, "error", err)
			}
		}

		m.logger.Info("backbone connection restored", "resubscribed", len(destinations))
		return conn
	}
}

func (m *Multiplexer) notifyState(connected bool) {
	m.mu.Lock()
	listeners := make([]func(bool), len(m.stateListeners))
	copy(listeners, m.stateListeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(connected)
	}
}
