package workflow

import (
	"sync"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
)

// Subscription tracks the one resource a workflow follows. Subscribe and
// unsubscribe calls are made without holding its lock, so handlers may stop
// the subscription from inside a callback.
type Subscription struct {
	stream Subscriber

	mu     sync.Mutex
	id     stream.ResourceID
	cancel func()
}

// NewSubscription returns an idle subscription on s.
func NewSubscription(s Subscriber) *Subscription {
	return &Subscription{stream: s}
}

// Follow subscribes handler to id, replacing any previous resource. Following
// the current resource again is a no-op.
func (s *Subscription) Follow(id stream.ResourceID, handler stream.Handler) {
	s.mu.Lock()
	if s.id == id && s.cancel != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	cancel := s.stream.Subscribe(id, handler)

	s.mu.Lock()
	prev := s.cancel
	s.id = id
	s.cancel = cancel
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Stop unsubscribes from the current resource.
func (s *Subscription) Stop() {
	s.StopIf("")
}

// StopIf unsubscribes only while id is the current resource. An empty id
// matches any resource.
func (s *Subscription) StopIf(id stream.ResourceID) {
	s.mu.Lock()
	if s.cancel == nil || (id != "" && s.id != id) {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.cancel = nil
	s.id = ""
	s.mu.Unlock()
	cancel()
}

// Current returns the followed resource, or "".
func (s *Subscription) Current() stream.ResourceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}
