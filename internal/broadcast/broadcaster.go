// Package broadcast fans output lines out to a durable sink and any number
// of live subscribers. The sink write is synchronous and never dropped; a
// slow subscriber is dropped rather than stalling the pipeline.
package broadcast

import (
	"sync"

	"github.com/haldardhruv/foamchalak/internal/domain"
)

// DefaultBuffer is the per-subscriber line buffer size
const DefaultBuffer = 256

// LineSink receives every published line, in publish order. Typically the
// run's log file.
type LineSink interface {
	WriteLine(line domain.OutputLine) error
}

// Subscription is one live observer's view of the stream. Lines delivers
// every line published after Subscribe was called; there is no replay.
type Subscription struct {
	ch      chan domain.OutputLine
	dropped bool
	mu      sync.Mutex
}

// Lines returns the subscriber's line channel. It is closed when the
// subscriber is unsubscribed or dropped for overflow.
func (s *Subscription) Lines() <-chan domain.OutputLine { return s.ch }

// Err returns ErrSubscriberOverflow after the channel closes if the
// subscriber was dropped because its buffer filled, nil otherwise.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropped {
		return domain.ErrSubscriberOverflow
	}
	return nil
}

func (s *Subscription) markDropped() {
	s.mu.Lock()
	s.dropped = true
	s.mu.Unlock()
}

// Broadcaster distributes published lines. All publishes for a run come
// from the run's single worker goroutine, which is what gives every
// subscriber and the sink the same total order.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	sink    LineSink
	sinkErr error
}

// New creates an empty broadcaster
func New() *Broadcaster {
	return &Broadcaster{subs: make(map[*Subscription]struct{})}
}

// SetSink attaches the durable sink and clears any recorded sink error.
// Pass nil to detach (between runs).
func (b *Broadcaster) SetSink(sink LineSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
	if sink != nil {
		b.sinkErr = nil
	}
}

// SinkErr returns the first error the sink reported since it was
// attached. The sink is the source of truth for the run's output, so a
// write failure must surface in the run's terminal summary rather than
// vanish.
func (b *Broadcaster) SinkErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sinkErr
}

// Subscribe registers a new observer with the given buffer size
// (DefaultBuffer when n <= 0).
func (b *Broadcaster) Subscribe(n int) *Subscription {
	if n <= 0 {
		n = DefaultBuffer
	}
	sub := &Subscription{ch: make(chan domain.OutputLine, n)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes an observer and closes its channel. Safe to call for
// a subscription that was already dropped.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish writes the line to the sink, then delivers it to every
// subscriber. A subscriber whose buffer is full is dropped on the spot so
// it can never block the sink write or the other subscribers.
func (b *Broadcaster) Publish(line domain.OutputLine) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sink != nil {
		if err := b.sink.WriteLine(line); err != nil && b.sinkErr == nil {
			b.sinkErr = err
		}
	}

	for sub := range b.subs {
		select {
		case sub.ch <- line:
		default:
			sub.markDropped()
			delete(b.subs, sub)
			close(sub.ch)
		}
	}
}

// SubscriberCount returns the number of live subscribers
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
