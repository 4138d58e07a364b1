package testsupport

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
)

// FakeSubscriber records subscriptions and delivers events synchronously.
type FakeSubscriber struct {
	mu      sync.Mutex
	nextID  int
	subs    map[stream.ResourceID]map[int]stream.Handler
	history []stream.ResourceID
}

// NewFakeSubscriber returns an empty subscriber.
func NewFakeSubscriber() *FakeSubscriber {
	return &FakeSubscriber{subs: make(map[stream.ResourceID]map[int]stream.Handler)}
}

func (s *FakeSubscriber) Subscribe(id stream.ResourceID, handler stream.Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[id] == nil {
		s.subs[id] = make(map[int]stream.Handler)
	}
	key := s.nextID
	s.nextID++
	s.subs[id][key] = handler
	s.history = append(s.history, id)
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[id], key)
			if len(s.subs[id]) == 0 {
				delete(s.subs, id)
			}
		})
	}
}

// Deliver invokes every handler registered for the event's resource and
// returns how many ran.
func (s *FakeSubscriber) Deliver(ev stream.Event) int {
	s.mu.Lock()
	handlers := make([]stream.Handler, 0, len(s.subs[ev.Resource()]))
	for _, h := range s.subs[ev.Resource()] {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
	return len(handlers)
}

// Active returns the subscribed resources, sorted.
func (s *FakeSubscriber) Active() []stream.ResourceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stream.ResourceID, 0, len(s.subs))
	for id := range s.subs {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Subscribed reports whether id has at least one handler.
func (s *FakeSubscriber) Subscribed(id stream.ResourceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[id]) > 0
}

// History returns every Subscribe call in order.
func (s *FakeSubscriber) History() []stream.ResourceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// StatusEvent builds a status_update for resource.
func StatusEvent(resource stream.ResourceID, data map[string]any) stream.Event {
	return decodeEvent(stream.EventStatusUpdate, resource, data)
}

// Event builds any resource event through the wire decoder, so tests see
// exactly what the manager would dispatch.
func Event(eventType string, resource stream.ResourceID, data map[string]any) stream.Event {
	return decodeEvent(eventType, resource, data)
}

func decodeEvent(eventType string, resource stream.ResourceID, data map[string]any) stream.Event {
	payload, err := json.Marshal(map[string]any{
		"resource_id": string(resource),
		"data":        data,
	})
	if err != nil {
		panic(err)
	}
	ev, err := stream.Decode(stream.Frame{Event: eventType, Data: string(payload)})
	if err != nil {
		panic(err)
	}
	return ev
}
