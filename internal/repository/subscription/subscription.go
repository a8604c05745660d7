package subscription

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrNotFound = errors.New("subscription not found")

// Subscriber wraps a websocket connection with a write lock so fan-out from
// concurrent request handlers never interleaves frames.
type Subscriber struct {
	ID   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewSubscriber(id string, conn *websocket.Conn) *Subscriber {
	return &Subscriber{ID: id, conn: conn}
}

func (s *Subscriber) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conn.WriteJSON(v)
}

func (s *Subscriber) Close() error {
	return s.conn.Close()
}
