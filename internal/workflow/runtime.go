package workflow

import (
	"context"
	"sync"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/credentials"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/notifications"
	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
)

// Subscriber is the part of stream.Manager the state machines use.
type Subscriber interface {
	Subscribe(id stream.ResourceID, handler stream.Handler) func()
}

// SessionStore persists the active session id of a workflow.
type SessionStore interface {
	Session(ctx context.Context, w credentials.Workflow) (string, bool, error)
	SetSession(ctx context.Context, w credentials.Workflow, id string) error
	ClearSession(ctx context.Context, w credentials.Workflow) error
}

// Notice is a side effect emitted by a reducer and published by its
// controller.
type Notice struct {
	Event   notifications.Event
	Payload notifications.Payload
}

// Publish sends every notice, ignoring delivery errors; notices are best
// effort and never fail a workflow step.
func Publish(ctx context.Context, svc notifications.Service, notices []Notice) {
	if svc == nil {
		return
	}
	for _, n := range notices {
		_ = svc.Publish(ctx, n.Event, n.Payload)
	}
}

// Observers fans state snapshots out to registered callbacks.
type Observers[S any] struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(S)
}

// Add registers fn and returns its removal function.
func (o *Observers[S]) Add(fn func(S)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(S))
	}
	id := o.nextID
	o.nextID++
	o.fns[id] = fn
	return func() {
		o.mu.Lock()
		delete(o.fns, id)
		o.mu.Unlock()
	}
}

// Emit calls every observer with s. Callers must not hold their own state
// lock.
func (o *Observers[S]) Emit(s S) {
	o.mu.Lock()
	fns := make([]func(S), 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
