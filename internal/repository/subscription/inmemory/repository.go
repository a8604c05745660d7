// Package inmemory is the registry of live topic subscriptions, keyed by
// destination. It replaces ambient shared maps with an explicit, owned
// structure.
package inmemory

import (
	"sync"

	"github.com/fares7elsadek/syncspace-watch/internal/repository/subscription"
)

type repo struct {
	mu sync.RWMutex
	// destination -> subscriber id -> subscriber
	byDestination map[string]map[string]*subscription.Subscriber
	// subscriber id -> destinations, for teardown on disconnect
	bySubscriber map[string]map[string]struct{}
	subscribers  map[string]*subscription.Subscriber
}

func NewRepo() *repo {
	return &repo{
		byDestination: make(map[string]map[string]*subscription.Subscriber),
		bySubscriber:  make(map[string]map[string]struct{}),
		subscribers:   make(map[string]*subscription.Subscriber),
	}
}

func (r *repo) Subscribe(sub *subscription.Subscriber, destination string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byDestination[destination] == nil {
		r.byDestination[destination] = make(map[string]*subscription.Subscriber)
	}
	r.byDestination[destination][sub.ID] = sub

	if r.bySubscriber[sub.ID] == nil {
		r.bySubscriber[sub.ID] = make(map[string]struct{})
	}
	r.bySubscriber[sub.ID][destination] = struct{}{}
	r.subscribers[sub.ID] = sub
}

func (r *repo) Unsubscribe(subscriberID, destination string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.byDestination[destination]
	if !ok {
		return subscription.ErrNotFound
	}
	if _, ok := subs[subscriberID]; !ok {
		return subscription.ErrNotFound
	}

	delete(subs, subscriberID)
	if len(subs) == 0 {
		delete(r.byDestination, destination)
	}
	if destinations, ok := r.bySubscriber[subscriberID]; ok {
		delete(destinations, destination)
	}

	return nil
}

// Drop removes every subscription held by a subscriber. Called when its
// connection goes away.
func (r *repo) Drop(subscriberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for destination := range r.bySubscriber[subscriberID] {
		if subs, ok := r.byDestination[destination]; ok {
			delete(subs, subscriberID)
			if len(subs) == 0 {
				delete(r.byDestination, destination)
			}
		}
	}
	delete(r.bySubscriber, subscriberID)
	delete(r.subscribers, subscriberID)
}

func (r *repo) GetSubscribers(destination string) []*subscription.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]*subscription.Subscriber, 0, len(r.byDestination[destination]))
	for _, sub := range r.byDestination[destination] {
		subs = append(subs, sub)
	}

	return subs
}
