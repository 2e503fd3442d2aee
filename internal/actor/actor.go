// Package actor is the minimal single-threaded mailbox runtime that Link,
// Port and Hub run on. It is deliberately small: the messaging substrate
// and thread pool an actor runs on is treated as a replaceable detail, but
// the protocol engine can't be exercised or tested without something that
// runs it, so this package supplies just enough of one.
//
// Each Actor processes exactly one event at a time, to completion, from a
// FIFO mailbox, on a goroutine owned by a dgroup.Group. Mailboxes are
// unbounded: Port's self-repost back-pressure pattern sends an event to its
// own capability from inside its own handler, and a bounded channel would
// deadlock a single-threaded actor trying to fill its own full mailbox.
package actor

import (
	"context"
	"fmt"
	"sync"

	"github.com/datawire/dlib/dgroup"
	"github.com/google/uuid"
)

// Actor processes one Event at a time to completion.
type Actor[E any] interface {
	OnEvent(ctx context.Context, event E)
}

// Cap is a send-only capability handle to a running actor's mailbox. It is
// cheap to clone (value type, backed by a pointer) and safe to share across
// goroutines.
type Cap[E any] struct {
	id   uuid.UUID
	name string
	box  *mailbox[E]
}

// Send enqueues event for processing. It never blocks the caller.
func (c Cap[E]) Send(event E) {
	c.box.push(event)
}

// IsZero reports whether this capability was never assigned (useful for
// optional single-slot capability fields, such as the Hub's per-port reader
// and writer slots).
func (c Cap[E]) IsZero() bool {
	return c.box == nil
}

func (c Cap[E]) String() string {
	return fmt.Sprintf("%s[%s]", c.name, c.id.String()[:8])
}

// Equal reports whether two capabilities address the same actor's mailbox.
func (c Cap[E]) Equal(other Cap[E]) bool {
	return c.box == other.box
}

// Spawn starts a's event loop as a named goroutine in grp and returns the
// capability other actors use to send it events.
func Spawn[E any](ctx context.Context, grp *dgroup.Group, name string, a Actor[E]) Cap[E] {
	cap := Cap[E]{id: uuid.New(), name: name, box: newMailbox[E]()}
	grp.Go(name, func(ctx context.Context) error {
		ctx = dgroup.WithGoroutineName(ctx, "/"+name)
		for {
			event, ok := cap.box.next(ctx)
			if !ok {
				return nil
			}
			a.OnEvent(ctx, event)
		}
	})
	return cap
}

// mailbox is an unbounded FIFO queue: a growable slice guarded by a mutex,
// with a single-slot signal channel waking the consuming goroutine.
type mailbox[E any] struct {
	mu     sync.Mutex
	queue  []E
	signal chan struct{}
}

func newMailbox[E any]() *mailbox[E] {
	return &mailbox[E]{signal: make(chan struct{}, 1)}
}

func (m *mailbox[E]) push(event E) {
	m.mu.Lock()
	m.queue = append(m.queue, event)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox[E]) next(ctx context.Context) (event E, ok bool) {
	for {
		select {
		case <-ctx.Done():
			var zero E
			return zero, false
		default:
		}
		m.mu.Lock()
		if len(m.queue) > 0 {
			event = m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return event, true
		}
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			var zero E
			return zero, false
		case <-m.signal:
		}
	}
}
