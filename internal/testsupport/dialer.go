package testsupport

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"

	"github.com/HarisRafiq/aura-ai-influencer-studio/internal/stream"
)

// ErrDialRefused is the default scripted dial failure.
var ErrDialRefused = errors.New("connection refused")

// FakeDialer is a scripted stream.Dialer.
type FakeDialer struct {
	mu       sync.Mutex
	dials    [][]stream.ResourceID
	conns    []*FakeConn
	failNext int
	failAll  bool
	failErr  error
}

// NewFakeDialer returns a dialer whose dials succeed.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

// FailNext makes the next n dials return err.
func (d *FakeDialer) FailNext(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
	d.failErr = err
}

// FailAlways makes every dial return err until Recover.
func (d *FakeDialer) FailAlways(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = true
	d.failErr = err
}

// Recover lets dials succeed again.
func (d *FakeDialer) Recover() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = false
	d.failNext = 0
}

func (d *FakeDialer) Dial(_ context.Context, resources []stream.ResourceID) (stream.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, slices.Clone(resources))
	if d.failAll || d.failNext > 0 {
		if d.failNext > 0 {
			d.failNext--
		}
		if d.failErr != nil {
			return nil, d.failErr
		}
		return nil, ErrDialRefused
	}
	conn := newFakeConn(resources)
	d.conns = append(d.conns, conn)
	return conn, nil
}

// DialCount returns how many dials were attempted.
func (d *FakeDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

// Dials returns the resource lists of every dial attempt.
func (d *FakeDialer) Dials() [][]stream.ResourceID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]stream.ResourceID, len(d.dials))
	for i, r := range d.dials {
		out[i] = slices.Clone(r)
	}
	return out
}

// Open returns connections that have not been closed.
func (d *FakeDialer) Open() []*FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*FakeConn
	for _, c := range d.conns {
		if !c.Closed() {
			out = append(out, c)
		}
	}
	return out
}

// Last returns the most recent successful connection, or nil.
func (d *FakeDialer) Last() *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// FakeConn is a scripted stream.Conn.
type FakeConn struct {
	Resources []stream.ResourceID

	frames chan stream.Frame
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func newFakeConn(resources []stream.ResourceID) *FakeConn {
	return &FakeConn{
		Resources: slices.Clone(resources),
		frames:    make(chan stream.Frame, 64),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
	}
}

func (c *FakeConn) Next() (stream.Frame, error) {
	select {
	case <-c.done:
		return stream.Frame{}, stream.ErrStreamClosed
	default:
	}
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.errs:
		return stream.Frame{}, err
	case <-c.done:
		return stream.Frame{}, stream.ErrStreamClosed
	}
}

func (c *FakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Closed reports whether Close has been called.
func (c *FakeConn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Push queues a raw frame.
func (c *FakeConn) Push(frame stream.Frame) {
	c.frames <- frame
}

// PushEvent queues a resource event with the backend's envelope.
func (c *FakeConn) PushEvent(eventType string, resource stream.ResourceID, data any) {
	payload, err := json.Marshal(map[string]any{
		"resource_id": string(resource),
		"data":        data,
	})
	if err != nil {
		panic(err)
	}
	c.Push(stream.Frame{Event: eventType, Data: string(payload)})
}

// Keepalive queues a comment frame.
func (c *FakeConn) Keepalive() {
	c.Push(stream.Frame{Comment: "keepalive"})
}

// Fail makes the pending or next Next return err.
func (c *FakeConn) Fail(err error) {
	select {
	case c.errs <- err:
	default:
	}
}
