package proc

import (
	"context"
	"slices"
	"sync"
)

// PlaybackQueue is the FIFO of admitted tracks a consumer drains.
type PlaybackQueue struct {
	mu     sync.Mutex
	items  []*Track
	notify chan struct{}
	closed bool
}

func NewPlaybackQueue() *PlaybackQueue {
	return &PlaybackQueue{notify: make(chan struct{}, 1)}
}

func (q *PlaybackQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *PlaybackQueue) Push(t *Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrSessionClosed
	}
	q.items = append(q.items, t)
	q.signal()
	return nil
}

// PushFront puts t ahead of everything already queued.
func (q *PlaybackQueue) PushFront(t *Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrSessionClosed
	}
	q.items = slices.Insert(q.items, 0, t)
	q.signal()
	return nil
}

// Pop blocks until a track is available, the queue is closed, or ctx ends.
func (q *PlaybackQueue) Pop(ctx context.Context) (*Track, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			t := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return t, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrSessionClosed
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Clear drops every queued track and returns how many were dropped.
func (q *PlaybackQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *PlaybackQueue) Snapshot() []*Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.items)
}

func (q *PlaybackQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
	q.signal()
}

// OrderGate admits callers strictly in the order they called Enter, one at a time.
type OrderGate struct {
	mu      sync.Mutex
	held    bool
	waiters []*Ticket
}

// Ticket is a place in an OrderGate's line.
type Ticket struct {
	gate    *OrderGate
	granted chan struct{}
	once    sync.Once
}

// Enter takes the next place in line without blocking.
func (g *OrderGate) Enter() *Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := &Ticket{gate: g, granted: make(chan struct{})}
	if !g.held && len(g.waiters) == 0 {
		g.held = true
		close(t.granted)
	} else {
		g.waiters = append(g.waiters, t)
	}
	return t
}

// Wait blocks until every earlier ticket has been released. If ctx ends first
// the ticket gives up its place and must not be used again.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.granted:
		return nil
	case <-ctx.Done():
	}
	t.Release()
	return ctx.Err()
}

// Release hands the gate to the next ticket in line. A ticket that was never
// granted simply leaves the line. Safe to call more than once.
func (t *Ticket) Release() {
	t.once.Do(func() {
		g := t.gate
		g.mu.Lock()
		defer g.mu.Unlock()

		select {
		case <-t.granted:
		default:
			if i := slices.Index(g.waiters, t); i >= 0 {
				g.waiters = slices.Delete(g.waiters, i, i+1)
			}
			return
		}

		if len(g.waiters) == 0 {
			g.held = false
			return
		}
		next := g.waiters[0]
		g.waiters = g.waiters[1:]
		close(next.granted)
	})
}
