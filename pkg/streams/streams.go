// Package streams implements the push-based source engine underneath the
// pipeline DSL. A Stream is a stage in a transform chain backed by a channel
// and a pumping goroutine; operators consume exactly one upstream stage and
// produce a new one. An Injector is the root of a chain: events written to it
// are delivered synchronously to the first stage.
//
// Error items flow through the same channel as values. Operators forward
// error items untouched and apply their transform only to values, so a
// failed transform surfaces at the terminal consumer rather than tearing
// the chain down.
//
// Every operator goroutine terminates when its upstream closes. Operators
// that complete early (Take, Until) drain and discard the remainder of their
// upstream so producers never block on an abandoned stage.
package streams

import (
	"sync"
	"time"
)

// Item is one element of a stream: either a value or a propagated error.
type Item struct {
	Value interface{}
	Err   error
}

// Stream is a single-consumer receivable stage of a transform chain.
type Stream struct {
	out chan Item
}

func newStream(capacity int) *Stream {
	return &Stream{out: make(chan Item, capacity)}
}

// Out returns the receive side of the stage. The channel is closed when the
// stage completes. A Stream must be consumed by exactly one reader; use
// Multicast to fan out.
func (s *Stream) Out() <-chan Item {
	return s.out
}

// From returns a stream that emits the given values and then completes.
func From(values ...interface{}) *Stream {
	s := newStream(len(values))
	for _, v := range values {
		s.out <- Item{Value: v}
	}
	close(s.out)
	return s
}

// DefaultInjectorBuffer is the channel capacity of a fresh injection point.
const DefaultInjectorBuffer = 64

// Injector is the manual event-injection point at the root of a chain.
// Writes are delivered synchronously to the root stage; once the consumer's
// buffer is full a write blocks until the chain catches up.
type Injector struct {
	mu       sync.Mutex
	stream   *Stream
	detached bool
}

// NewInjector creates an injection point with the default buffer.
func NewInjector() *Injector {
	return &Injector{stream: newStream(DefaultInjectorBuffer)}
}

// Stream returns the stage fed by this injector.
func (i *Injector) Stream() *Stream {
	return i.stream
}

// Write injects one event. Writes after Detach or Close are dropped.
func (i *Injector) Write(v interface{}) {
	i.push(Item{Value: v})
}

// Fail injects an error item, which propagates downstream like any other
// failed transform result.
func (i *Injector) Fail(err error) {
	i.push(Item{Err: err})
}

func (i *Injector) push(it Item) {
	i.mu.Lock()
	if i.detached {
		i.mu.Unlock()
		return
	}
	// Holding the lock during the send keeps Detach from closing the
	// channel mid-write. Writers therefore serialize, matching the
	// single-threaded delivery contract of the injection point.
	i.stream.out <- it
	i.mu.Unlock()
}

// Close completes the chain: the root stage closes and completion ripples
// through every downstream operator.
func (i *Injector) Close() {
	i.Detach()
}

// Detach permanently disconnects the injector. The root stage completes and
// subsequent writes are dropped. Used by the clone splice to abandon a chain
// that has been replaced.
func (i *Injector) Detach() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.detached {
		return
	}
	i.detached = true
	close(i.stream.out)
}

// Timestamped wraps a value with its emission time, produced by Timestamp.
type Timestamped struct {
	Time  time.Time
	Value interface{}
}
